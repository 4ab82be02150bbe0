package orm

import (
	"context"
	"database/sql"

	"github.com/mickamy/ormrel/scope"
)

// JoinPair holds a source–target pair read from a join table.
type JoinPair[S, T comparable] struct {
	Source S
	Target T
}

// QueryJoinTable reads (sourceCol, targetCol) rows from the given join table
// where sourceCol IN (sourceIDs), narrowed by any extra filters (for example
// a polymorphic type column). It returns a slice of JoinPair.
func QueryJoinTable[S, T comparable](
	ctx context.Context, db Querier, table, sourceCol, targetCol string, sourceIDs []S, filters ...scope.Scope,
) ([]JoinPair[S, T], error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	qi := db.dialect().QuoteIdent
	scan := func(rows *sql.Rows) (JoinPair[S, T], error) {
		var p JoinPair[S, T]
		if err := rows.Scan(&p.Source, &p.Target); err != nil {
			return p, err //nolint:wrapcheck // pass through
		}
		p.Source = textToString(p.Source)
		p.Target = textToString(p.Target)
		return p, nil
	}

	q := NewQuery[JoinPair[S, T]](db, table, []string{sourceCol, targetCol}, "", scan, nil).
		Scopes(scope.In(qi(sourceCol), sourceIDs)).
		Scopes(filters...)
	return q.All(ctx)
}

// UniqueTargets extracts deduplicated target values from a slice of JoinPair.
func UniqueTargets[S, T comparable](pairs []JoinPair[S, T]) []T {
	seen := make(map[T]struct{}, len(pairs))
	result := make([]T, 0, len(pairs))
	for _, p := range pairs {
		if _, ok := seen[p.Target]; !ok {
			seen[p.Target] = struct{}{}
			result = append(result, p.Target)
		}
	}
	return result
}

// GroupBySource groups JoinPair values by source key into a map[S][]T.
// Targets keep their input order within each group.
func GroupBySource[S, T comparable](pairs []JoinPair[S, T]) map[S][]T {
	m := make(map[S][]T)
	for _, p := range pairs {
		m[p.Source] = append(m[p.Source], p.Target)
	}
	return m
}

// textToString replaces a []byte held in an interface-typed key with its
// string form so that it can be used as a map key.
func textToString[K comparable](v K) K {
	if b, ok := any(v).([]byte); ok {
		if s, ok := any(string(b)).(K); ok {
			return s
		}
	}
	return v
}
