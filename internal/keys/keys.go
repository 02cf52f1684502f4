// Package keys provides the pure (modulo OS entropy) cryptographic-material
// primitives exposed to rules-file generators: SSH ed25519 keypairs, age
// x25519 keypairs, and uniformly sampled alphanumeric strings.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"

	"filippo.io/age"
	"golang.org/x/crypto/ssh"
)

const maxRandomStringLength = 1 << 16

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateSSHEd25519 produces a PKCS#8-encoded PEM private key and an
// SSH wire-format public key ("ssh-ed25519 <base64>").
func GenerateSSHEd25519() (privatePEM, publicSSH string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ed25519 key: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", fmt.Errorf("marshal pkcs8 private key: %w", err)
	}

	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	privatePEM = string(pem.EncodeToMemory(block))

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", "", fmt.Errorf("marshal ssh public key: %w", err)
	}

	publicSSH = string(ssh.MarshalAuthorizedKey(sshPub))
	// MarshalAuthorizedKey appends a trailing newline; the spec's contract
	// requires the public string to contain no newline.
	for len(publicSSH) > 0 && (publicSSH[len(publicSSH)-1] == '\n' || publicSSH[len(publicSSH)-1] == '\r') {
		publicSSH = publicSSH[:len(publicSSH)-1]
	}

	return privatePEM, publicSSH, nil
}

// GenerateAgeX25519 produces an age identity/recipient pair in their
// canonical bech32-encoded on-the-wire forms.
func GenerateAgeX25519() (privateStr, publicStr string, err error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", fmt.Errorf("generate x25519 identity: %w", err)
	}

	return identity.String(), identity.Recipient().String(), nil
}

// RandomAlphanumeric returns a string of length n sampled uniformly from
// [A-Za-z0-9]. n must be in [0, 2^16]; any other value is an error.
func RandomAlphanumeric(n int) (string, error) {
	if n < 0 || n > maxRandomStringLength {
		return "", fmt.Errorf("random string length %d out of range [0, %d]", n, maxRandomStringLength)
	}

	if n == 0 {
		return "", nil
	}

	out := make([]byte, n)
	max := big.NewInt(int64(len(alphanumeric)))

	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("sample random string: %w", err)
		}

		out[i] = alphanumeric[idx.Int64()]
	}

	return string(out), nil
}
