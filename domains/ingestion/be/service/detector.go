package service

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/channelpulse/channelpulse-saas/platform/go/persistence"
	"github.com/channelpulse/channelpulse-saas/platform/go/rules"
)

// Detection is the outcome of vendor detection: the single config version
// that will govern the batch.
type Detection struct {
	ConfigID  uuid.UUID
	VendorKey string
	Scope     string
	Version   int
	Rules     rules.Rules
}

type candidate struct {
	rec   persistence.VendorConfigRecord
	rules rules.Rules
}

// Detect selects the vendor config governing an upload from the configs
// visible to the tenant. Tenant-scoped configs form the first tier; system
// defaults are only consulted when no tenant config matches. Within a tier,
// the most specific signature wins and the config priority breaks ties.
// An unresolvable tie is an error, never an arbitrary pick.
func Detect(src *Source, configs []persistence.VendorConfigRecord) (Detection, error) {
	var tenantTier, systemTier []candidate
	for _, rec := range configs {
		r, err := rules.Parse(rec.Rules)
		if err != nil {
			return Detection{}, fmt.Errorf("stored rules for %q are invalid: %w", rec.VendorKey, err)
		}
		if !signatureMatches(src, r.Signature) {
			continue
		}
		c := candidate{rec: rec, rules: r}
		if rec.Scope == persistence.ScopeTenant {
			tenantTier = append(tenantTier, c)
		} else {
			systemTier = append(systemTier, c)
		}
	}

	tier := tenantTier
	if len(tier) == 0 {
		tier = systemTier
	}
	if len(tier) == 0 {
		return Detection{}, &DetectionError{Reason: DetectNoMatch}
	}

	best := tier[0]
	tied := []candidate{best}
	for _, c := range tier[1:] {
		switch compareCandidates(c, best) {
		case 1:
			best = c
			tied = tied[:0]
			tied = append(tied, c)
		case 0:
			tied = append(tied, c)
		}
	}

	if len(tied) > 1 {
		keys := make([]string, 0, len(tied))
		for _, c := range tied {
			keys = append(keys, c.rec.VendorKey)
		}
		return Detection{}, &DetectionError{Reason: DetectAmbiguous, Candidates: keys}
	}

	return Detection{
		ConfigID:  best.rec.ConfigID,
		VendorKey: best.rec.VendorKey,
		Scope:     best.rec.Scope,
		Version:   best.rec.Version,
		Rules:     best.rules,
	}, nil
}

// compareCandidates returns 1 when a outranks b, -1 when b outranks a, and 0
// on a dead tie.
func compareCandidates(a, b candidate) int {
	as, bs := a.rules.Signature.Specificity(), b.rules.Signature.Specificity()
	if as != bs {
		if as > bs {
			return 1
		}
		return -1
	}
	if a.rules.Priority != b.rules.Priority {
		if a.rules.Priority < b.rules.Priority {
			return 1
		}
		return -1
	}
	return 0
}

// signatureMatches checks every populated signature rule against the parsed
// source. All populated rules must hold.
func signatureMatches(src *Source, sig rules.Signature) bool {
	if sig.FilenameGlob != "" {
		name := strings.ToLower(filepath.Base(src.Filename()))
		ok, err := path.Match(strings.ToLower(sig.FilenameGlob), name)
		if err != nil || !ok {
			return false
		}
	}

	if len(sig.Extensions) > 0 {
		ext := src.Extension()
		found := false
		for _, e := range sig.Extensions {
			if strings.ToLower(strings.TrimPrefix(e, ".")) == strings.TrimPrefix(ext, ".") {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if sig.MinSheets > 0 && src.SheetCount() < sig.MinSheets {
		return false
	}
	if sig.MaxSheets > 0 && src.SheetCount() > sig.MaxSheets {
		return false
	}

	for _, hc := range sig.HeaderCells {
		value, ok := src.Cell(hc.Sheet, hc.Cell)
		if !ok || value != strings.TrimSpace(hc.Value) {
			return false
		}
	}

	return true
}
