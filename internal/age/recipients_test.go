package age

import (
	"testing"

	fage "filippo.io/age"
)

func TestParseRecipients(t *testing.T) {
	id, err := fage.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}

	publicKey := id.Recipient().String()

	tests := []struct {
		name        string
		keys        []string
		expectError bool
		want        int
	}{
		{name: "valid age key", keys: []string{publicKey}, want: 1},
		{name: "multiple age keys", keys: []string{publicKey, publicKey}, want: 2},
		{name: "empty", keys: nil, expectError: true},
		{name: "unsupported format", keys: []string{"not-a-key"}, expectError: true},
		{name: "private key rejected", keys: []string{"AGE-SECRET-KEY-1QYQSZQGPQYQSZQGPQYQSZQGPQYQSZQGPQYQSZQGPQYQSZQGPQYQSZQGPQCNHYV5"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recipients, err := ParseRecipients(tt.keys)

			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got none")
				}

				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(recipients) != tt.want {
				t.Errorf("got %d recipients, want %d", len(recipients), tt.want)
			}
		})
	}
}
