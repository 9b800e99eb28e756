package matcher

import "strings"

// MappingTable maps an original account reference to a canonical client id.
// Keys are stored normalized with NormalizeText.
type MappingTable map[string]string

// Add registers originalID -> clientID. Blank values are ignored.
func (m MappingTable) Add(originalID, clientID string) {
	key := NormalizeText(originalID)
	clientID = strings.TrimSpace(clientID)
	if key == "" || clientID == "" {
		return
	}
	m[key] = clientID
}

// Lookup returns the client id mapped to accountNumber.
func (m MappingTable) Lookup(accountNumber string) (string, bool) {
	if len(m) == 0 {
		return "", false
	}
	id, ok := m[NormalizeText(accountNumber)]
	return id, ok
}
