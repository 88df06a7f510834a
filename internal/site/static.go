package site

import (
	"fmt"
	"os"
	"strings"
	"sync"

	yaml "go.yaml.in/yaml/v3"
)

// File is the on-disk layout of a static site directory.
//
// Example:
//
//	site:
//	  name: My Blog
//	  home_url: https://blog.example.com
//	  trash_days: 30
//	users:
//	  - id: 1
//	    email: admin@example.com
//	    display_name: Admin
//	    caps: [edit_comments]
type File struct {
	Site     Info      `yaml:"site"`
	Users    []User    `yaml:"users"`
	Posts    []Post    `yaml:"posts"`
	Comments []Comment `yaml:"comments"`
}

// Static is an in-memory Directory. It is safe for concurrent use; Replace
// swaps the whole data set atomically.
type Static struct {
	mu       sync.RWMutex
	info     Info
	users    map[int64]User
	byEmail  map[string]int64
	posts    map[int64]Post
	comments map[int64]Comment
}

// NewStatic builds a directory from f.
func NewStatic(f File) *Static {
	s := &Static{}
	s.Replace(f)
	return s
}

// LoadStatic reads a YAML directory file.
func LoadStatic(path string) (*Static, error) {
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewStatic(f), nil
}

// ReadFile parses a YAML directory file without building a Static.
func ReadFile(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return File{}, fmt.Errorf("site directory %s: %w", path, err)
	}
	return f, nil
}

func (s *Static) Replace(f File) {
	users := make(map[int64]User, len(f.Users))
	byEmail := make(map[string]int64, len(f.Users))
	for _, u := range f.Users {
		if u.ID <= 0 {
			continue
		}
		users[u.ID] = u
		if e := normEmail(u.Email); e != "" {
			byEmail[e] = u.ID
		}
	}
	posts := make(map[int64]Post, len(f.Posts))
	for _, p := range f.Posts {
		posts[p.ID] = p
	}
	comments := make(map[int64]Comment, len(f.Comments))
	for _, c := range f.Comments {
		comments[c.ID] = c
	}

	s.mu.Lock()
	s.info = f.Site
	s.users = users
	s.byEmail = byEmail
	s.posts = posts
	s.comments = comments
	s.mu.Unlock()
}

func (s *Static) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

func (s *Static) UserByEmail(email string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[normEmail(email)]
	if !ok {
		return User{}, false
	}
	u, ok := s.users[id]
	return u, ok
}

func (s *Static) UserByID(id int64) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *Static) Comment(id int64) (Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comments[id]
	return c, ok
}

func (s *Static) Post(id int64) (Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	return p, ok
}

// CanEditComment grants edit rights to users holding edit_comments or
// moderate_comments, and to the author of the post the comment belongs to.
func (s *Static) CanEditComment(u User, id int64) bool {
	if u.ID <= 0 {
		return false
	}
	if u.Can(CapEditComments) || u.Can(CapModerate) {
		return true
	}
	c, ok := s.Comment(id)
	if !ok {
		return false
	}
	p, ok := s.Post(c.PostID)
	return ok && p.AuthorID == u.ID
}

func normEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }
