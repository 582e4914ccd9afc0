package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type listResponse struct {
	Items []Entity `json:"items"`
}

// listAll returns the cached listing for a kind, fetching it once per
// session. The cache is invalidated only by session teardown.
func (s *Session) listAll(ctx context.Context, kind Kind) ([]Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if items, ok := s.listings[kind]; ok {
		return items, nil
	}

	var resp listResponse
	path := fmt.Sprintf("/api/sites/%s/%s", s.siteID, kind.collection())
	if err := s.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind.collection(), err)
	}

	s.logger.Debug("cached catalog listing",
		zap.String("kind", string(kind)),
		zap.Int("count", len(resp.Items)))
	s.listings[kind] = resp.Items
	return resp.Items, nil
}

// ResolveByName resolves a name within a kind to its entity. Exactly one
// match succeeds; zero matches is a *NotFoundError and more than one is an
// *AmbiguousError. Callers must never continue with a guessed entity.
func (s *Session) ResolveByName(ctx context.Context, kind Kind, name string) (Entity, error) {
	return s.resolve(ctx, kind, name, "")
}

// ResolveInProject resolves a name within a kind, disambiguated by the
// parent project's name.
func (s *Session) ResolveInProject(ctx context.Context, kind Kind, name, projectName string) (Entity, error) {
	return s.resolve(ctx, kind, name, projectName)
}

func (s *Session) resolve(ctx context.Context, kind Kind, name, projectName string) (Entity, error) {
	items, err := s.listAll(ctx, kind)
	if err != nil {
		return Entity{}, err
	}

	var matches []Entity
	for _, item := range items {
		if item.Name != name {
			continue
		}
		if projectName != "" && item.ProjectName != projectName {
			continue
		}
		matches = append(matches, item)
	}

	switch len(matches) {
	case 0:
		return Entity{}, &NotFoundError{Kind: kind, Name: name}
	case 1:
		return matches[0], nil
	default:
		return Entity{}, &AmbiguousError{Kind: kind, Name: name, Matches: len(matches)}
	}
}
