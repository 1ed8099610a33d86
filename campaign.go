package relocate

import (
	"debug/elf"
	"fmt"
	"unsafe"

	"go.uber.org/zap"
)

// SymbolResolver decides where a symbol should point instead. found
// distinguishes "this symbol is simply not redirected" — the common case,
// and not a failure — from err, which reports a fault in the resolver
// itself and is counted against the campaign.
type SymbolResolver interface {
	Resolve(name string) (addr uintptr, found bool, err error)
}

// RedirectMap is the plain map resolver: present means redirect.
type RedirectMap map[string]uintptr

func (m RedirectMap) Resolve(name string) (uintptr, bool, error) {
	addr, ok := m[name]
	return addr, ok, nil
}

// Campaign drives one redirection pass over one or more loaded shared
// objects. It holds the memory-map snapshot, the dedup state and the
// success/failure tally for the pass, and implements RelocationHandler so
// it can be handed straight to ProcessDynamic.
//
// A campaign is not safe for concurrent use, and two campaigns over
// overlapping address ranges must not run concurrently either: the
// protect/write/restore sequence is not atomic with respect to other
// threads touching the same pages.
type Campaign struct {
	mappings  Mappings
	resolver  SymbolResolver
	blacklist map[string]struct{}
	seen      map[uintptr]struct{}
	restore   bool
	log       *zap.Logger

	success int
	failure int
	err     error
}

// Option configures a Campaign.
type Option func(*Campaign)

// WithBlacklist names symbols that must be left alone even when the
// resolver knows them. Blacklisted symbols are never offered to the
// resolver at all.
func WithBlacklist(names ...string) Option {
	return func(c *Campaign) {
		for _, n := range names {
			c.blacklist[n] = struct{}{}
		}
	}
}

// WithMappings substitutes a pre-parsed memory-map snapshot for the
// /proc/self/maps load NewCampaign would otherwise do.
func WithMappings(m Mappings) Option {
	return func(c *Campaign) { c.mappings = m }
}

// WithLogger enables debug logging of per-relocation decisions. The default
// is a nop logger; the campaign never writes to stderr on its own.
func WithLogger(l *zap.Logger) Option {
	return func(c *Campaign) { c.log = l }
}

// KeepWritable leaves regions writable after patching instead of restoring
// their snapshot protection. Only for callers that intend further patching
// and take the restore on themselves; the default behavior preserves
// RELRO-style hardening.
func KeepWritable() Option {
	return func(c *Campaign) { c.restore = false }
}

// NewCampaign snapshots /proc/self/maps (unless WithMappings supplies a
// snapshot) and prepares a campaign that redirects symbols through
// resolver.
func NewCampaign(resolver SymbolResolver, opts ...Option) (*Campaign, error) {
	if resolver == nil {
		return nil, fmt.Errorf("nil resolver")
	}
	c := &Campaign{
		resolver:  resolver,
		blacklist: make(map[string]struct{}),
		seen:      make(map[uintptr]struct{}),
		restore:   true,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.mappings == nil {
		m, err := LoadMappings()
		if err != nil {
			return nil, err
		}
		c.mappings = m
	}
	return c, nil
}

// ProcessObject runs the campaign over one loaded object's dynamic section.
// Per-relocation failures accumulate in Counts and Err; the returned error
// reports structural problems (a malformed dynamic section) only.
func (c *Campaign) ProcessObject(start, size, base uintptr) error {
	_, err := ProcessDynamic(start, size, base, c)
	return err
}

// Counts reports how many relocations were redirected and how many redirect
// attempts failed. Symbols the resolver does not know count as neither.
func (c *Campaign) Counts() (success, failure int) {
	return c.success, c.failure
}

// Err returns the first failure the campaign hit, or nil. Later failures
// only bump the counter.
func (c *Campaign) Err() error {
	return c.err
}

// Rela implements RelocationHandler.
func (c *Campaign) Rela(rela []elfRela, strtab StringTable, symtab SymbolTable, base uintptr) int {
	before := c.failure
	for _, r := range rela {
		c.redirect(relaSym(r), uintptr(r.Off), strtab, symtab, base)
	}
	return c.failure - before
}

// Rel implements RelocationHandler. REL entries carry no addend field; the
// write target is the same in-memory slot either way.
func (c *Campaign) Rel(rel []elfRel, strtab StringTable, symtab SymbolTable, base uintptr) int {
	before := c.failure
	for _, r := range rel {
		c.redirect(relSym(r), uintptr(r.Off), strtab, symtab, base)
	}
	return c.failure - before
}

// redirect handles a single relocation entry.
func (c *Campaign) redirect(symIndex uint32, off uintptr, strtab StringTable, symtab SymbolTable, base uintptr) {
	if symIndex == 0 {
		// STN_UNDEF: an addend-only relocation with no symbol behind
		// it. Nothing to resolve, not a failure.
		return
	}

	sym := symtab.symbol(symIndex)
	name, err := strtab.Lookup(sym.Name)
	if err != nil {
		c.fail(fmt.Errorf("symbol %d: %w", symIndex, err))
		return
	}
	if name == "" {
		return
	}
	if _, skip := c.blacklist[name]; skip {
		c.log.Debug("blacklisted symbol left alone", zap.String("symbol", name))
		return
	}

	target := base + off
	if _, done := c.seen[target]; done {
		// The same slot can show up in more than one relocation
		// array; patch it once.
		c.log.Debug("target already patched",
			zap.String("symbol", name),
			zap.Uintptr("target", target))
		return
	}

	addr, found, err := c.resolver.Resolve(name)
	if err != nil {
		c.fail(fmt.Errorf("resolving %q: %w", name, err))
		return
	}
	if !found {
		return
	}

	region := c.mappings.Find(target)
	if region == nil {
		c.fail(fmt.Errorf("relocation target %#x for %q is not in any mapping", target, name))
		return
	}

	err = withWritable(region, c.restore, func() error {
		*(*uintptr)(unsafe.Pointer(target)) = addr
		return nil
	})
	if err != nil {
		c.fail(fmt.Errorf("patching %q at %#x: %w", name, target, err))
		return
	}

	c.seen[target] = struct{}{}
	c.success++
	c.log.Debug("redirected symbol",
		zap.String("symbol", name),
		zap.Stringer("type", elf.ST_TYPE(sym.Info)),
		zap.Stringer("bind", elf.ST_BIND(sym.Info)),
		zap.Stringer("visibility", elf.ST_VISIBILITY(sym.Other)),
		zap.Uintptr("target", target),
		zap.Uintptr("addr", addr))
}

func (c *Campaign) fail(err error) {
	c.failure++
	if c.err == nil {
		c.err = err
	}
	c.log.Debug("relocation failed", zap.Error(err))
}
