// Package rendezvous writes and reads the on-disk rendezvous files that
// authorize a TCP loopback connection to act as a local socket (§6): the
// plain libassuan/WSL form ("<port>\n<16 raw nonce bytes>") and the Cygwin
// form ("!<socket ><port> s <nonce-as-hex-groups>\0").
package rendezvous

import (
	"crypto/rand"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// NonceSize is the length of the shared secret exchanged over the rendezvous
// file and the first bytes of the TCP stream (§6).
const NonceSize = 16

// NewNonce returns NonceSize fresh random bytes. Generating the nonce is not
// "cryptography" in the sense excluded by spec.md §1 (the core performs no
// signing or key-material handling) — it is an unpredictable shared secret,
// the same role crypto/rand plays in the teacher's loadOrGenerateHostKey.
func NewNonce() ([NonceSize]byte, error) {
	var n [NonceSize]byte
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("rendezvous: generate nonce: %w", err)
	}
	return n, nil
}

// WritePlain writes the libassuan/WSL rendezvous file: ASCII decimal port,
// newline, then the 16 raw nonce bytes. The file is created owner-only
// (§9 Open Question: owner-only access where the platform supports it).
func WritePlain(path string, port int, nonce [NonceSize]byte) error {
	var buf []byte
	buf = append(buf, []byte(strconv.Itoa(port))...)
	buf = append(buf, '\n')
	buf = append(buf, nonce[:]...)
	return os.WriteFile(path, buf, 0o600)
}

// ReadPlain parses a libassuan/WSL rendezvous file.
func ReadPlain(path string) (port int, nonce [NonceSize]byte, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nonce, fmt.Errorf("rendezvous: read %s: %w", path, err)
	}
	idx := strings.IndexByte(string(data), '\n')
	if idx < 0 {
		return 0, nonce, fmt.Errorf("rendezvous: %s: missing newline separator", path)
	}
	port, err = strconv.Atoi(string(data[:idx]))
	if err != nil {
		return 0, nonce, fmt.Errorf("rendezvous: %s: invalid port: %w", path, err)
	}
	body := data[idx+1:]
	if len(body) < NonceSize {
		return 0, nonce, fmt.Errorf("rendezvous: %s: nonce truncated (%d bytes)", path, len(body))
	}
	copy(nonce[:], body[:NonceSize])
	return port, nonce, nil
}

// WriteCygwin writes the Cygwin rendezvous file: "!<socket ><port> s
// <nonce-as-hex-groups>\0", per §6.
func WriteCygwin(path string, port int, nonce [NonceSize]byte) error {
	var groups []string
	for i := 0; i < NonceSize; i += 4 {
		groups = append(groups, fmt.Sprintf("%02x%02x%02x%02x", nonce[i], nonce[i+1], nonce[i+2], nonce[i+3]))
	}
	content := fmt.Sprintf("!<socket >%d s %s\x00", port, strings.Join(groups, "-"))
	return os.WriteFile(path, []byte(content), 0o600)
}

// ReadCygwin parses a Cygwin rendezvous file written by WriteCygwin.
func ReadCygwin(path string) (port int, nonce [NonceSize]byte, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nonce, fmt.Errorf("rendezvous: read %s: %w", path, err)
	}
	s := strings.TrimSuffix(string(data), "\x00")
	if !strings.HasPrefix(s, "!<socket >") {
		return 0, nonce, fmt.Errorf("rendezvous: %s: unexpected prefix", path)
	}
	s = strings.TrimPrefix(s, "!<socket >")
	parts := strings.SplitN(s, " s ", 2)
	if len(parts) != 2 {
		return 0, nonce, fmt.Errorf("rendezvous: %s: malformed cygwin rendezvous", path)
	}
	port, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, nonce, fmt.Errorf("rendezvous: %s: invalid port: %w", path, err)
	}
	groups := strings.Split(parts[1], "-")
	if len(groups) != NonceSize/4 {
		return 0, nonce, fmt.Errorf("rendezvous: %s: expected %d nonce groups, got %d", path, NonceSize/4, len(groups))
	}
	pos := 0
	for _, g := range groups {
		if len(g) != 8 {
			return 0, nonce, fmt.Errorf("rendezvous: %s: malformed nonce group %q", path, g)
		}
		for i := 0; i < 8; i += 2 {
			var b byte
			if _, err := fmt.Sscanf(g[i:i+2], "%02x", &b); err != nil {
				return 0, nonce, fmt.Errorf("rendezvous: %s: invalid hex in nonce group: %w", path, err)
			}
			nonce[pos] = b
			pos++
		}
	}
	return port, nonce, nil
}
