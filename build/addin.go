package build

import "context"

// A Handle is an opaque reference to an open target document, owned by the
// bridge implementation.
type Handle interface{}

// A Bridge is the add-in boundary: it opens target documents, moves
// component sets in and out of them, and runs scripts inside the host
// application. The core consumes it and never looks behind it.
type Bridge interface {
	// Open readies the document at path and returns a handle to it.
	Open(ctx context.Context, path string) (Handle, error)

	// Import applies the staged directory to the open document. The
	// directory carries component files plus a changes manifest describing
	// removals and references.
	Import(ctx context.Context, h Handle, dir string) error

	// Export writes the document's current components into dir and returns
	// the src fragment describing what was written.
	Export(ctx context.Context, h Handle, dir string) ([]Src, error)

	// Close releases the handle, saving the document when save is true.
	Close(ctx context.Context, h Handle, save bool) error

	// Run executes a script file against the document at path.
	Run(ctx context.Context, path string, script string, args []string) error
}
