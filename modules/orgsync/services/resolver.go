// Package services keeps the MO organization aligned with the SD department
// tree: the NY-logic resolver elevates placements past too-deep levels, the
// tree fixer ensures units exist with correct attributes, and the NY-logic
// fixer moves misplaced engagements.
package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	sdtypes "github.com/magenta-aps/sdlon/modules/sd/domain/types"
	sdservices "github.com/magenta-aps/sdlon/modules/sd/services"
	"github.com/magenta-aps/sdlon/pkg/cache"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

// SDReader is the slice of the SD service the organization sync consumes.
type SDReader interface {
	Employments(ctx context.Context, effectiveDate time.Time, filter sdservices.EmploymentFilter) ([]sdtypes.Person, error)
	DepartmentsByUUID(ctx context.Context, unit uuid.UUID, from, to time.Time) ([]sdtypes.Department, error)
	Parent(ctx context.Context, unit uuid.UUID, effectiveDate time.Time, institutionRoot uuid.UUID) (uuid.UUID, bool, error)
}

type resolveKey struct {
	Unit uuid.UUID
	Date string
}

// Resolver maps a raw SD department to the unit engagements should be placed
// in, by walking parents until the level is no longer in the configured
// too-deep set. Results are cached per (unit, effective date) since the same
// placement is resolved once per engagement segment and ancestry rarely
// changes within a run.
type Resolver struct {
	sd              SDReader
	institutionRoot uuid.UUID
	tooDeep         []string
	log             *logrus.Logger

	cache *cache.TTL[resolveKey, uuid.UUID]
	now   func() time.Time
}

func NewResolver(sd SDReader, institutionRoot uuid.UUID, tooDeep []string, log *logrus.Logger) *Resolver {
	return &Resolver{
		sd:              sd,
		institutionRoot: institutionRoot,
		tooDeep:         tooDeep,
		log:             log,
		cache:           cache.NewTTL[resolveKey, uuid.UUID](30 * time.Minute),
		now:             time.Now,
	}
}

// ClearCache drops cached resolutions. Called between independent runs.
func (r *Resolver) ClearCache() {
	r.cache.Clear()
}

// Resolve returns the unit the given department elevates to as of asOf.
// Ancestry cannot be queried retroactively in SD, so dates before today are
// silently floored at today; callers must treat this as a known
// approximation.
func (r *Resolver) Resolve(ctx context.Context, unit uuid.UUID, asOf time.Time) (uuid.UUID, error) {
	effective := laterDate(asOf, today(r.now))
	key := resolveKey{Unit: unit, Date: validity.FormatSDDate(effective)}
	return r.cache.GetOrLoad(key, func() (uuid.UUID, error) {
		return r.resolve(ctx, unit, effective)
	})
}

func (r *Resolver) resolve(ctx context.Context, unit uuid.UUID, effective time.Time) (uuid.UUID, error) {
	current := unit
	level, err := r.level(ctx, current, effective)
	if err != nil {
		return uuid.Nil, err
	}

	for levelTooDeep(r.tooDeep, level) {
		parent, ok, err := r.sd.Parent(ctx, current, effective, r.institutionRoot)
		if err != nil {
			if errors.Is(err, sdservices.ErrAncestorLookup) {
				// No parent while still too deep: keep the unit.
				r.log.WithFields(logrus.Fields{
					"unit":  current,
					"level": level,
				}).Warn("no parent for too-deep unit, keeping it")
				return current, nil
			}
			return uuid.Nil, err
		}
		if !ok {
			// Root reached. Returned even if its level is still in
			// the too-deep set, rather than looping forever.
			return current, nil
		}
		current = parent
		level, err = r.level(ctx, current, effective)
		if err != nil {
			return uuid.Nil, err
		}
	}
	return current, nil
}

func (r *Resolver) level(ctx context.Context, unit uuid.UUID, at time.Time) (string, error) {
	departments, err := r.sd.DepartmentsByUUID(ctx, unit, at, at)
	if err != nil {
		return "", err
	}
	return departments[0].LevelIdentifier, nil
}

func levelTooDeep(tooDeep []string, level string) bool {
	for _, l := range tooDeep {
		if l == level {
			return true
		}
	}
	return false
}

func today(now func() time.Time) time.Time {
	return validity.ToMidnight(now().UTC())
}

func laterDate(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
