// Package genesis loads the capability grants a ledger starts with.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

// Member lists the capabilities one principal holds at genesis.
type Member struct {
	Principal    lifecycle.Principal    `json:"principal"`
	Capabilities []lifecycle.Capability `json:"capabilities"`
}

type File struct {
	Members []Member `json:"members"`
}

func LoadFromFile(path string) ([]lifecycle.Grant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a genesis document. Unknown capability names are rejected;
// at least one Admin grant is required so roles can be administered later.
func Parse(data []byte) ([]lifecycle.Grant, error) {
	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse genesis file: %w", err)
	}

	seen := make(map[lifecycle.Grant]bool)
	var grants []lifecycle.Grant
	hasAdmin := false
	for _, m := range file.Members {
		if m.Principal == "" {
			return nil, fmt.Errorf("genesis member without principal")
		}
		for _, c := range m.Capabilities {
			g := lifecycle.Grant{Principal: m.Principal, Capability: c}
			if seen[g] {
				continue
			}
			seen[g] = true
			grants = append(grants, g)
			if c == lifecycle.CapabilityAdmin {
				hasAdmin = true
			}
		}
	}
	if !hasAdmin {
		return nil, fmt.Errorf("genesis file grants no %s capability", lifecycle.CapabilityAdmin)
	}

	sort.Slice(grants, func(i, j int) bool {
		if grants[i].Principal != grants[j].Principal {
			return grants[i].Principal < grants[j].Principal
		}
		return grants[i].Capability < grants[j].Capability
	})
	return grants, nil
}
