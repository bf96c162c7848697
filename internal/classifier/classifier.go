// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package classifier implements email syntax validation and domain trust
// classification. A Classifier is an immutable value built from static
// domain lists; Classify is a pure function of the email string, invoked
// both during CSV ingestion and during forward-candidate admission.
package classifier

import (
	"regexp"
	"strings"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
)

// Trust scores by domain class
const (
	// ScoreDisposable is assigned to disposable-domain addresses; they are
	// ineligible for repository membership.
	ScoreDisposable = 0.0
	// ScoreWebmail is assigned to known consumer/corporate-webmail domains.
	ScoreWebmail = 0.7
	// ScoreCustom is assigned to any other syntactically valid domain,
	// treated as higher trust (typically organizational).
	ScoreCustom = 0.9
)

// Rejection reasons surfaced on invalid or ineligible addresses
const (
	ReasonEmptyEmail       = "email is empty"
	ReasonSyntax           = "email syntax is invalid"
	ReasonLocalTooLong     = "local part exceeds 64 characters"
	ReasonAddressTooLong   = "address exceeds 254 characters"
	ReasonConsecutiveDots  = "address contains consecutive dots"
	ReasonDomainNoDot      = "domain has no dot"
	ReasonInvalidTLD       = "domain TLD is invalid"
	ReasonRoleAccount      = "role or system account address"
	ReasonDisposableDomain = "disposable email domain"
)

// emailPattern is the basic shape check; the structural limits above it are
// enforced separately for precise rejection reasons.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]*[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]*[a-zA-Z0-9])?)*$`)

// Classification is the verdict for one email address.
type Classification struct {
	IsValid         bool    `json:"is_valid"`
	Email           string  `json:"email"` // Normalized
	Domain          string  `json:"domain"`
	IsDisposable    bool    `json:"is_disposable"`
	IsCorporate     bool    `json:"is_corporate"` // Known consumer/corporate webmail
	TrustScore      float64 `json:"trust_score"`
	RejectionReason string  `json:"rejection_reason,omitempty"`
}

// Eligible reports whether the address may enter a repository at all.
func (c Classification) Eligible() bool {
	return c.IsValid && !c.IsDisposable
}

// Classifier classifies email addresses against static domain lists.
// It carries no per-repository state and is safe for concurrent use.
type Classifier struct {
	disposable map[string]struct{}
	webmail    map[string]struct{}
	roleLocal  map[string]struct{}
	rolePrefix []string
}

// NewClassifier builds a classifier from the given configuration. A zero
// Config yields a classifier with the compiled-in default lists.
func NewClassifier(cfg Config) *Classifier {
	cfg = cfg.withDefaults()

	c := &Classifier{
		disposable: make(map[string]struct{}, len(cfg.DisposableDomains)),
		webmail:    make(map[string]struct{}, len(cfg.WebmailDomains)),
		roleLocal:  make(map[string]struct{}, len(cfg.RoleLocalParts)),
		rolePrefix: make([]string, 0, len(cfg.RolePrefixes)),
	}
	for _, d := range cfg.DisposableDomains {
		c.disposable[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	for _, d := range cfg.WebmailDomains {
		c.webmail[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	for _, l := range cfg.RoleLocalParts {
		c.roleLocal[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}
	for _, p := range cfg.RolePrefixes {
		c.rolePrefix = append(c.rolePrefix, strings.ToLower(strings.TrimSpace(p)))
	}
	return c
}

// Classify validates the syntax of an email address and classifies its
// domain, producing a trust score. The verdict is a pure function of the
// input and the classifier's lists.
func (c *Classifier) Classify(email string) Classification {
	normalized := model.NormalizeEmail(email)
	result := Classification{Email: normalized}

	if normalized == "" {
		result.RejectionReason = ReasonEmptyEmail
		return result
	}
	if len(normalized) > 254 {
		result.RejectionReason = ReasonAddressTooLong
		return result
	}

	at := strings.LastIndex(normalized, "@")
	if at <= 0 || at == len(normalized)-1 {
		result.RejectionReason = ReasonSyntax
		return result
	}
	local := normalized[:at]
	domain := normalized[at+1:]
	result.Domain = domain

	if len(local) > 64 {
		result.RejectionReason = ReasonLocalTooLong
		return result
	}
	if strings.Contains(normalized, "..") {
		result.RejectionReason = ReasonConsecutiveDots
		return result
	}
	if !strings.Contains(domain, ".") {
		result.RejectionReason = ReasonDomainNoDot
		return result
	}
	if !hasValidTLD(domain) {
		result.RejectionReason = ReasonInvalidTLD
		return result
	}
	if !emailPattern.MatchString(normalized) {
		result.RejectionReason = ReasonSyntax
		return result
	}

	// Role and system accounts never enter a repository even when
	// otherwise well-formed.
	if c.isRoleAccount(local) {
		result.RejectionReason = ReasonRoleAccount
		return result
	}

	result.IsValid = true

	switch {
	case c.isDisposable(domain):
		result.IsDisposable = true
		result.TrustScore = ScoreDisposable
		result.RejectionReason = ReasonDisposableDomain
	case c.isWebmail(domain):
		result.IsCorporate = true
		result.TrustScore = ScoreWebmail
	default:
		result.TrustScore = ScoreCustom
	}

	return result
}

func (c *Classifier) isRoleAccount(local string) bool {
	if _, ok := c.roleLocal[local]; ok {
		return true
	}
	for _, prefix := range c.rolePrefix {
		if strings.HasPrefix(local, prefix) {
			return true
		}
	}
	return false
}

func (c *Classifier) isDisposable(domain string) bool {
	if _, ok := c.disposable[domain]; ok {
		return true
	}
	// Subdomains of a disposable provider are disposable too.
	for {
		dot := strings.Index(domain, ".")
		if dot < 0 {
			return false
		}
		domain = domain[dot+1:]
		if _, ok := c.disposable[domain]; ok {
			return true
		}
	}
}

func (c *Classifier) isWebmail(domain string) bool {
	_, ok := c.webmail[domain]
	return ok
}

// hasValidTLD checks that the last domain label is at least two alphabetic
// characters.
func hasValidTLD(domain string) bool {
	dot := strings.LastIndex(domain, ".")
	tld := domain[dot+1:]
	if len(tld) < 2 {
		return false
	}
	for i := 0; i < len(tld); i++ {
		if tld[i] < 'a' || tld[i] > 'z' {
			return false
		}
	}
	return true
}
