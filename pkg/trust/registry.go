// Package trust decides which node addresses may contribute metrics.
package trust

import (
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/polyvisor/pulse/pkg/utils"
)

// Oracle answers whether a node address is trusted to submit metrics.
type Oracle interface {
	IsTrustedNode(address string) bool
}

// Registry is an in-memory oracle seeded from configuration. Membership can
// change at runtime; lookups are lock-free.
type Registry struct {
	nodes  *xsync.Map[string, struct{}]
	logger *zap.Logger
}

// NewRegistry builds a registry trusting the given addresses.
func NewRegistry(logger *zap.Logger, addresses []string) *Registry {
	r := &Registry{
		nodes:  xsync.NewMap[string, struct{}](),
		logger: logger.Named("trust"),
	}
	for _, addr := range utils.Dedup(addresses) {
		r.nodes.Store(addr, struct{}{})
	}
	return r
}

// FromEnv builds a registry from the TRUSTED_NODES environment variable, a
// comma-separated address list.
func FromEnv(logger *zap.Logger) *Registry {
	return NewRegistry(logger, utils.SplitCSV(utils.Env("TRUSTED_NODES", "")))
}

func (r *Registry) IsTrustedNode(address string) bool {
	_, ok := r.nodes.Load(address)
	return ok
}

// Add grants an address submission rights.
func (r *Registry) Add(address string) {
	r.nodes.Store(address, struct{}{})
	r.logger.Info("node trusted", zap.String("address", address))
}

// Remove revokes an address's submission rights.
func (r *Registry) Remove(address string) {
	r.nodes.Delete(address)
	r.logger.Info("node untrusted", zap.String("address", address))
}

// Count reports how many addresses are trusted.
func (r *Registry) Count() int { return r.nodes.Size() }

// List returns the trusted addresses.
func (r *Registry) List() []string {
	out := make([]string, 0, r.nodes.Size())
	r.nodes.Range(func(addr string, _ struct{}) bool {
		out = append(out, addr)
		return true
	})
	return out
}
