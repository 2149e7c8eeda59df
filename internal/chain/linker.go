package chain

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/epord/Plasma-Cash-RootChain/internal/artifact"
	"github.com/epord/Plasma-Cash-RootChain/internal/sequencer"
)

// linker tracks the libraries linked into each pending artifact and builds
// the creation code that is finally sent on chain.
type linker struct {
	store  *artifact.Store
	logger *slog.Logger

	mu    sync.Mutex
	links map[string][]sequencer.LinkedLibrary
}

func newLinker(store *artifact.Store, logger *slog.Logger) *linker {
	return &linker{
		store:  store,
		logger: logger,
		links:  make(map[string][]sequencer.LinkedLibrary),
	}
}

// link records lib against the artifact named into.
func (l *linker) link(lib sequencer.LinkedLibrary, into string) error {
	if _, err := l.store.Get(into); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.links[into] = append(l.links[into], lib)
	return nil
}

// creationCode returns the linked bytecode of name followed by its ABI
// encoded constructor arguments. Pending links for name are consumed.
func (l *linker) creationCode(name string, args []any) ([]byte, error) {
	a, err := l.store.Get(name)
	if err != nil {
		return nil, err
	}
	if a.Bytecode == nil || a.Bytecode.Hex() == "" {
		return nil, fmt.Errorf("%s: %w", name, artifact.ErrEmptyBytecode)
	}

	l.mu.Lock()
	libs := l.links[name]
	delete(l.links, name)
	l.mu.Unlock()

	code := a.Bytecode.Hex()
	for _, lib := range libs {
		var sourcePath string
		if libArtifact, err := l.store.Get(lib.Name); err == nil {
			sourcePath = libArtifact.SourcePath
		}
		var n int
		code, n = artifact.Link(code, lib.Name, sourcePath, lib.Address)
		if n == 0 {
			l.logger.Warn("library has no placeholder in bytecode",
				slog.String("library", lib.Name),
				slog.String("contract", name),
			)
		}
	}
	if left := artifact.Unlinked(code); len(left) > 0 {
		return nil, fmt.Errorf("%s: %w: %s", name, artifact.ErrUnlinkedLibrary, strings.Join(left, ", "))
	}

	bytecode, err := artifact.NewBytecode(code).Bytes()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	ctorArgs, err := a.EncodeConstructorArgs(args...)
	if err != nil {
		return nil, fmt.Errorf("encode %s constructor: %w", name, err)
	}
	return append(bytecode, ctorArgs...), nil
}
