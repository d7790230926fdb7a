package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

func newTestDedup(t *testing.T, cooldown time.Duration, n int) *DedupCache {
	t.Helper()
	c, err := NewDedupCache(DedupConfig{Policy: DedupPolicy{Cooldown: cooldown, EscalationCount: n}})
	require.NoError(t, err)
	return c
}

func TestDedupCache_EscalationSequence(t *testing.T) {
	c := newTestDedup(t, 30*time.Second, 3)

	var decisions []domain.Decision
	var severities []domain.Severity
	for i := 0; i < 9; i++ {
		adm := c.Admit(finding("10.0.0.9", domain.SignatureSQLInjection, domain.SeverityMedium, t0.Add(time.Duration(i)*time.Second)))
		decisions = append(decisions, adm.Decision)
		severities = append(severities, adm.Finding.Severity)
	}

	assert.Equal(t, []domain.Decision{
		domain.DecisionNew, domain.DecisionSuppressed, domain.DecisionEscalated,
		domain.DecisionSuppressed, domain.DecisionSuppressed, domain.DecisionEscalated,
		domain.DecisionSuppressed, domain.DecisionSuppressed, domain.DecisionEscalated,
	}, decisions)
	assert.Equal(t, domain.SeverityHigh, severities[2])
	assert.Equal(t, domain.SeverityCritical, severities[5])
	// saturates
	assert.Equal(t, domain.SeverityCritical, severities[8])
}

func TestDedupCache_EscalatedFindingIsNew(t *testing.T) {
	c := newTestDedup(t, 30*time.Second, 2)
	first := finding("10.0.0.9", domain.SignatureXSS, domain.SeverityLow, t0)
	second := finding("10.0.0.9", domain.SignatureXSS, domain.SeverityLow, t0.Add(time.Second))

	c.Admit(first)
	adm := c.Admit(second)

	require.Equal(t, domain.DecisionEscalated, adm.Decision)
	assert.NotEqual(t, second.ID, adm.Finding.ID)
	assert.Equal(t, second.ID, adm.Finding.EscalatedFrom)
	assert.Equal(t, domain.SeverityLow, second.Severity, "input finding is not modified")
	assert.Equal(t, domain.SeverityMedium, adm.Finding.Severity)
}

func TestDedupCache_CooldownResetsEpoch(t *testing.T) {
	c := newTestDedup(t, 30*time.Second, 3)

	assert.Equal(t, domain.DecisionNew, c.Admit(finding("10.0.0.9", domain.SignatureXSS, domain.SeverityMedium, t0)).Decision)
	assert.Equal(t, domain.DecisionSuppressed, c.Admit(finding("10.0.0.9", domain.SignatureXSS, domain.SeverityMedium, t0.Add(30*time.Second))).Decision)
	// 31s after the last occurrence
	assert.Equal(t, domain.DecisionNew, c.Admit(finding("10.0.0.9", domain.SignatureXSS, domain.SeverityMedium, t0.Add(61*time.Second))).Decision)

	entry, ok := c.Entry(domain.DedupKey{SourceIP: finding("10.0.0.9", "", 0, t0).SourceIP, Signature: domain.SignatureXSS})
	require.True(t, ok)
	assert.Equal(t, 1, entry.OccurrenceCount)
	assert.Equal(t, t0.Add(61*time.Second), entry.EpochStart)
}

func TestDedupCache_KeysAreIndependent(t *testing.T) {
	c := newTestDedup(t, time.Minute, 3)

	tests := []struct {
		ip  string
		sig domain.Signature
	}{
		{"10.0.0.1", domain.SignatureSQLInjection},
		{"10.0.0.1", domain.SignatureXSS},
		{"10.0.0.2", domain.SignatureSQLInjection},
	}
	for _, tc := range tests {
		t.Run(tc.ip+"/"+string(tc.sig), func(t *testing.T) {
			adm := c.Admit(finding(tc.ip, tc.sig, domain.SeverityMedium, t0))
			assert.Equal(t, domain.DecisionNew, adm.Decision)
		})
	}
	assert.Equal(t, 3, c.Len())
}

func TestDedupCache_LateFindingDoesNotRewindLastSeen(t *testing.T) {
	c := newTestDedup(t, 30*time.Second, 5)
	c.Admit(finding("10.0.0.9", domain.SignatureXSS, domain.SeverityMedium, t0.Add(10*time.Second)))
	c.Admit(finding("10.0.0.9", domain.SignatureXSS, domain.SeverityMedium, t0))

	entry, ok := c.Entry(domain.DedupKey{SourceIP: finding("10.0.0.9", "", 0, t0).SourceIP, Signature: domain.SignatureXSS})
	require.True(t, ok)
	assert.Equal(t, t0.Add(10*time.Second), entry.LastSeen)
	assert.Equal(t, 2, entry.OccurrenceCount)
}

func TestDedupCache_Sweep(t *testing.T) {
	c := newTestDedup(t, 30*time.Second, 3)
	c.Admit(finding("10.0.0.1", domain.SignatureXSS, domain.SeverityMedium, t0))
	c.Admit(finding("10.0.0.2", domain.SignatureXSS, domain.SeverityMedium, t0.Add(20*time.Second)))

	assert.Equal(t, 1, c.Sweep(t0.Add(45*time.Second)))
	assert.Equal(t, 1, c.Len())
}

func TestDedupCache_PolicyValidation(t *testing.T) {
	tests := []struct {
		name   string
		policy DedupPolicy
	}{
		{"zero cooldown", DedupPolicy{Cooldown: 0, EscalationCount: 3}},
		{"escalation one", DedupPolicy{Cooldown: time.Second, EscalationCount: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDedupCache(DedupConfig{Policy: tc.policy})
			assert.True(t, domain.IsConfigurationError(err))
		})
	}

	c := newTestDedup(t, time.Second, 3)
	assert.Error(t, c.SetPolicy(DedupPolicy{Cooldown: -1, EscalationCount: 3}))
	require.NoError(t, c.SetPolicy(DedupPolicy{Cooldown: time.Minute, EscalationCount: 4}))
	assert.Equal(t, 4, c.Policy().EscalationCount)
}

func TestDedupCache_ConcurrentAdmit(t *testing.T) {
	c := newTestDedup(t, time.Hour, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	counts := map[domain.Decision]int{}
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				d := c.Admit(finding("10.0.0.9", domain.SignatureSQLInjection, domain.SeverityLow, t0)).Decision
				mu.Lock()
				counts[d]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, counts[domain.DecisionNew])
	assert.Equal(t, 100, counts[domain.DecisionEscalated])
	assert.Equal(t, 899, counts[domain.DecisionSuppressed])
}
