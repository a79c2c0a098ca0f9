package solve

import (
	"context"
)

// pathSource serves dependencies that live at a fixed location on disk. It
// never copies anything; fetch hands the path back verbatim.
type pathSource struct {
	loader ManifestLoader
}

func (s *pathSource) Match(hint interface{}) bool {
	switch h := hint.(type) {
	case string:
		return h == SourcePath
	case Dependency:
		return SourceType(h) == SourcePath
	}
	return false
}

func (s *pathSource) Resolve(ctx context.Context, dep Dependency) ([]Registration, error) {
	pd, ok := dep.(PathDep)
	if !ok {
		return nil, &UnknownSourceError{Type: SourceType(dep)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, err := s.loader.Load(pd.Path)
	if err != nil {
		return nil, &PathNotFoundError{Name: pd.Name(), Path: pd.Path, Err: err}
	}

	return []Registration{{
		Name:         pd.Name(),
		Version:      snap.Version,
		Source:       SourceURI{Type: SourcePath, Value: pd.Path},
		Dependencies: snap.Dependencies,
	}}, nil
}

func (s *pathSource) Fetch(ctx context.Context, reg Registration) (string, error) {
	if _, err := s.loader.Load(reg.Source.Value); err != nil {
		return "", &PathNotFoundError{Name: reg.Name, Path: reg.Source.Value, Err: err}
	}
	return reg.Source.Value, nil
}

func (s *pathSource) Update(ctx context.Context) error {
	return nil
}
