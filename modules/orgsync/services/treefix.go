package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	motypes "github.com/magenta-aps/sdlon/modules/mo/domain/types"
	"github.com/magenta-aps/sdlon/modules/mo/infrastructure/moclient"
	moservices "github.com/magenta-aps/sdlon/modules/mo/services"
	sdtypes "github.com/magenta-aps/sdlon/modules/sd/domain/types"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

// The single unit type every synchronized unit carries. Nothing fancier is
// done until a source for unit types has been decided.
const unitTypeName = "Enhed"

// UnitStore is the slice of the MO service the tree fixer writes through.
type UnitStore interface {
	OrgUnitAt(ctx context.Context, unit uuid.UUID, at time.Time) (*motypes.OrgUnit, error)
	CreateOrgUnit(ctx context.Context, in moclient.OrgUnitCreateInput) (uuid.UUID, error)
	UpdateOrgUnit(ctx context.Context, in moclient.OrgUnitUpdateInput) error
	EnsureClass(ctx context.Context, facetUserKey, name string) (uuid.UUID, error)
}

// TreeFixer guarantees a unit and its ancestors exist in MO with correct
// attributes before engagements are placed in them.
type TreeFixer struct {
	sd              SDReader
	mo              UnitStore
	institutionRoot uuid.UUID
	moRoot          uuid.UUID
	log             *logrus.Logger
}

func NewTreeFixer(sd SDReader, mo UnitStore, institutionRoot, moRoot uuid.UUID, log *logrus.Logger) *TreeFixer {
	return &TreeFixer{
		sd:              sd,
		mo:              mo,
		institutionRoot: institutionRoot,
		moRoot:          moRoot,
		log:             log,
	}
}

// FixDepartment synchronizes the MO state of a unit to the current and
// future SD registrations, fixing ancestors before the unit itself. The
// recursion terminates because the SD ancestry chain is finite and ends at
// the institution root.
func (t *TreeFixer) FixDepartment(ctx context.Context, unit uuid.UUID, asOf time.Time) error {
	t.log.WithFields(logrus.Fields{"unit": unit, "as_of": validity.FormatSDDate(asOf)}).Info("fix department")

	departments, err := t.sd.DepartmentsByUUID(ctx, unit, asOf, validity.Infinity)
	if err != nil {
		return err
	}
	for _, department := range departments {
		parentLookup := laterDate(asOf, department.Activation)
		parent, hasParent, err := t.sd.Parent(ctx, unit, parentLookup, t.institutionRoot)
		if err != nil {
			return errors.Wrapf(err, "fixing unit %s", unit)
		}

		created, err := t.createIfMissing(ctx, department, parent, hasParent)
		if err != nil {
			return err
		}

		if hasParent {
			if err := t.FixDepartment(ctx, parent, asOf); err != nil {
				return err
			}
		}

		// A freshly created unit is assumed correctly parented; no
		// update call follows creation.
		if !created {
			if err := t.updateRegistration(ctx, department, parent, hasParent); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *TreeFixer) createIfMissing(ctx context.Context, department sdtypes.Department, parent uuid.UUID, hasParent bool) (bool, error) {
	// Units activated before 1930 cannot be read back from MO at their
	// activation date, so the existence check is floored.
	at := department.Activation
	if !at.After(validity.Date(1930, time.January, 1)) {
		at = validity.Date(1930, time.January, 2)
	}

	existing, err := t.mo.OrgUnitAt(ctx, department.UnitUUID, at)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	levelUUID, err := t.mo.EnsureClass(ctx, moservices.FacetOrgUnitLevel, department.LevelIdentifier)
	if err != nil {
		return false, err
	}
	typeUUID, err := t.mo.EnsureClass(ctx, moservices.FacetOrgUnitType, unitTypeName)
	if err != nil {
		return false, err
	}

	parentUUID := t.moRoot
	if hasParent {
		parentUUID = parent
	}
	_, err = t.mo.CreateOrgUnit(ctx, moclient.OrgUnitCreateInput{
		UUID:       department.UnitUUID,
		UserKey:    department.Identifier,
		Name:       department.Name,
		ParentUUID: parentUUID,
		LevelUUID:  levelUUID,
		TypeUUID:   typeUUID,
		From:       department.Activation,
		To:         department.Deactivation,
	})
	if err != nil {
		return false, err
	}
	t.log.WithField("unit", department.UnitUUID).Info("created unit")
	return true, nil
}

func (t *TreeFixer) updateRegistration(ctx context.Context, department sdtypes.Department, parent uuid.UUID, hasParent bool) error {
	levelUUID, err := t.mo.EnsureClass(ctx, moservices.FacetOrgUnitLevel, department.LevelIdentifier)
	if err != nil {
		return err
	}
	typeUUID, err := t.mo.EnsureClass(ctx, moservices.FacetOrgUnitType, unitTypeName)
	if err != nil {
		return err
	}

	parentUUID := t.moRoot
	if hasParent {
		parentUUID = parent
	}
	name := department.Name
	userKey := department.Identifier
	return t.mo.UpdateOrgUnit(ctx, moclient.OrgUnitUpdateInput{
		UUID:       department.UnitUUID,
		Name:       &name,
		UserKey:    &userKey,
		ParentUUID: &parentUUID,
		LevelUUID:  &levelUUID,
		TypeUUID:   &typeUUID,
		From:       department.Activation,
		To:         department.Deactivation,
	})
}
