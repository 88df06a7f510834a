package mail

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/emersion/go-msgauth/dkim"
)

// DKIMConfig enables DKIM signing of composed messages.
type DKIMConfig struct {
	// Domain overrides the domain taken from the sender address.
	Domain   string
	Selector string
	// KeyPath or PrivateKey (PEM) supplies the signing key; PrivateKey wins.
	KeyPath    string
	PrivateKey string
}

func (c DKIMConfig) enabled() bool {
	return strings.TrimSpace(c.Selector) != "" || strings.TrimSpace(c.KeyPath) != "" || strings.TrimSpace(c.PrivateKey) != ""
}

// Signer adds a DKIM-Signature header to outgoing messages.
type Signer struct {
	domain     string
	selector   string
	key        crypto.Signer
	headerKeys []string
}

// NewSigner returns nil, nil when cfg does not enable signing.
func NewSigner(cfg DKIMConfig) (*Signer, error) {
	if !cfg.enabled() {
		return nil, nil
	}
	selector := strings.TrimSpace(cfg.Selector)
	if selector == "" {
		return nil, fmt.Errorf("dkim: selector is required when enabling DKIM")
	}

	var pemData []byte
	switch {
	case strings.TrimSpace(cfg.PrivateKey) != "":
		pemData = []byte(cfg.PrivateKey)
	case strings.TrimSpace(cfg.KeyPath) != "":
		data, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("dkim: read private key: %w", err)
		}
		pemData = data
	default:
		return nil, fmt.Errorf("dkim: provide key_path or private_key")
	}

	key, err := parsePrivateKey(pemData)
	if err != nil {
		return nil, fmt.Errorf("dkim: parse private key: %w", err)
	}
	return &Signer{
		domain:   strings.ToLower(strings.TrimSpace(cfg.Domain)),
		selector: selector,
		key:      key,
		headerKeys: []string{
			"from",
			"to",
			"subject",
			"date",
			"mime-version",
			"content-type",
			"message-id",
		},
	}, nil
}

func (s *Signer) Selector() string {
	if s == nil {
		return ""
	}
	return s.selector
}

// Sign returns raw with a DKIM signature for the sender's domain. A nil
// signer and an already signed message are returned unchanged.
func (s *Signer) Sign(raw []byte, from Address) ([]byte, error) {
	if s == nil || s.key == nil {
		return raw, nil
	}
	if hasSignature(raw) {
		return raw, nil
	}
	domain := s.domain
	if domain == "" {
		domain = from.Domain()
	}
	if domain == "" {
		return nil, fmt.Errorf("dkim: unable to determine signing domain")
	}

	opts := &dkim.SignOptions{
		Domain:                 domain,
		Selector:               s.selector,
		Signer:                 s.key,
		HeaderCanonicalization: dkim.CanonicalizationRelaxed,
		BodyCanonicalization:   dkim.CanonicalizationRelaxed,
		HeaderKeys:             s.headerKeys,
	}
	var signed bytes.Buffer
	if err := dkim.Sign(&signed, bytes.NewReader(crlf(raw)), opts); err != nil {
		return nil, fmt.Errorf("dkim: signing failed: %w", err)
	}
	return signed.Bytes(), nil
}

func parsePrivateKey(pemData []byte) (crypto.Signer, error) {
	for {
		block, rest := pem.Decode(pemData)
		if block == nil {
			break
		}
		switch block.Type {
		case "RSA PRIVATE KEY":
			key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
			return key, nil
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
			if signer, ok := key.(crypto.Signer); ok {
				return signer, nil
			}
			return nil, fmt.Errorf("unsupported private key type in PKCS#8 container")
		}
		pemData = rest
	}
	return nil, fmt.Errorf("no private key found in PEM data")
}

func hasSignature(raw []byte) bool {
	upper := bytes.ToUpper(raw)
	return bytes.Contains(upper, []byte("\nDKIM-SIGNATURE:")) || bytes.HasPrefix(upper, []byte("DKIM-SIGNATURE:"))
}

// crlf converts bare LF line endings to CRLF.
func crlf(data []byte) []byte {
	if bytes.Contains(data, []byte("\r\n")) || !bytes.Contains(data, []byte("\n")) {
		return data
	}
	return bytes.ReplaceAll(data, []byte("\n"), []byte("\r\n"))
}
