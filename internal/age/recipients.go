package age

import (
	"fmt"
	"strings"

	fage "filippo.io/age"
	"filippo.io/age/agessh"
)

// ParseRecipients converts resolved public-key strings (age1.../ssh-...) into
// age.Recipient values, dispatching on prefix the same way the rest of the
// ecosystem does.
func ParseRecipients(keys []string) ([]fage.Recipient, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("no recipients provided")
	}

	recipients := make([]fage.Recipient, 0, len(keys))

	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		var (
			recipient fage.Recipient
			err       error
		)

		switch {
		case strings.HasPrefix(key, "age1"):
			recipient, err = fage.ParseX25519Recipient(key)
		case strings.HasPrefix(key, "ssh-"):
			recipient, err = agessh.ParseRecipient(key)
		default:
			return nil, fmt.Errorf("unsupported recipient format: %q", key)
		}

		if err != nil {
			return nil, fmt.Errorf("parse recipient %q: %w", key, err)
		}

		recipients = append(recipients, recipient)
	}

	if len(recipients) == 0 {
		return nil, fmt.Errorf("no valid recipients found")
	}

	return recipients, nil
}
