package service

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/forgo/progression/internal/model"
)

//go:embed badges.yaml
var defaultCatalogYAML []byte

// BadgeCatalog is the read-only registry of badge definitions. It is built
// once and shared; nothing mutates it after construction.
type BadgeCatalog struct {
	defs []*model.BadgeDefinition
	byID map[string]*model.BadgeDefinition
}

// NewBadgeCatalog validates definitions and builds a catalog
func NewBadgeCatalog(defs []*model.BadgeDefinition) (*BadgeCatalog, error) {
	c := &BadgeCatalog{
		defs: make([]*model.BadgeDefinition, 0, len(defs)),
		byID: make(map[string]*model.BadgeDefinition, len(defs)),
	}
	for _, def := range defs {
		if def == nil || def.ID == "" {
			return nil, fmt.Errorf("%w: badge without id", ErrInvalidRequirement)
		}
		if _, dup := c.byID[def.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateBadgeID, def.ID)
		}
		if _, err := def.Tier.Reward(); err != nil {
			return nil, fmt.Errorf("badge %s: %w", def.ID, err)
		}
		if def.Dimension != nil && !def.Dimension.Valid() {
			return nil, fmt.Errorf("badge %s: %w: %q", def.ID, model.ErrUnknownDimension, *def.Dimension)
		}
		if len(def.Requirements) == 0 {
			return nil, fmt.Errorf("%w: badge %s has no requirements", ErrInvalidRequirement, def.ID)
		}
		for _, req := range def.Requirements {
			if err := validateRequirement(req); err != nil {
				return nil, fmt.Errorf("badge %s: %w", def.ID, err)
			}
		}
		c.defs = append(c.defs, def)
		c.byID[def.ID] = def
	}
	for _, def := range c.defs {
		for _, pre := range def.PrerequisiteBadgeIDs {
			if _, ok := c.byID[pre]; !ok {
				return nil, fmt.Errorf("%w: %s requires %s", ErrUnknownPrerequisite, def.ID, pre)
			}
		}
	}
	return c, nil
}

// DefaultBadgeCatalog returns the built-in catalog
func DefaultBadgeCatalog() (*BadgeCatalog, error) {
	return ParseBadgeCatalog(defaultCatalogYAML)
}

// Get returns the badge definition with id
func (c *BadgeCatalog) Get(id string) (*model.BadgeDefinition, error) {
	def, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBadgeNotFound, id)
	}
	return def, nil
}

// All returns the definitions in catalog order
func (c *BadgeCatalog) All() []*model.BadgeDefinition {
	return c.defs
}

// Len returns the number of definitions
func (c *BadgeCatalog) Len() int {
	return len(c.defs)
}

func validateRequirement(req model.Requirement) error {
	switch r := req.(type) {
	case *model.CountRequirement:
		if r.Target <= 0 {
			return fmt.Errorf("%w: count target must be positive", ErrInvalidRequirement)
		}
		if r.Dimension != nil && !r.Dimension.Valid() {
			return fmt.Errorf("%w: %q", model.ErrUnknownDimension, *r.Dimension)
		}
	case *model.StreakRequirement:
		if r.Target <= 0 {
			return fmt.Errorf("%w: streak target must be positive", ErrInvalidRequirement)
		}
	case *model.RatingRequirement:
		if r.Target < model.MinRating || r.Target > model.MaxRating {
			return fmt.Errorf("%w: rating target %d outside [%d, %d]", ErrInvalidRequirement, r.Target, model.MinRating, model.MaxRating)
		}
		if r.Dimension != nil && !r.Dimension.Valid() {
			return fmt.Errorf("%w: %q", model.ErrUnknownDimension, *r.Dimension)
		}
	case *model.LevelRequirement:
		if r.Target < 1 {
			return fmt.Errorf("%w: level target must be at least 1", ErrInvalidRequirement)
		}
		if r.Dimension != nil && !r.Dimension.Valid() {
			return fmt.Errorf("%w: %q", model.ErrUnknownDimension, *r.Dimension)
		}
	case *model.QualityRequirement:
		if r.Metric == "" {
			return fmt.Errorf("%w: quality metric is required", ErrInvalidRequirement)
		}
	case *model.TimeRequirement:
		if r.Metric == "" || r.Target <= 0 {
			return fmt.Errorf("%w: time metric and positive target are required", ErrInvalidRequirement)
		}
	case *model.MultiDimensionRequirement:
		switch r.Criterion {
		case model.CriterionLevel, model.CriterionRating, model.CriterionActive:
		default:
			return fmt.Errorf("%w: unknown criterion %q", ErrInvalidRequirement, r.Criterion)
		}
		if r.MinDimensions < 1 || r.MinDimensions > len(model.AllDimensions) {
			return fmt.Errorf("%w: min_dimensions must be in [1, %d]", ErrInvalidRequirement, len(model.AllDimensions))
		}
	case *model.CompoundRequirement:
		if len(r.Parts) == 0 {
			return fmt.Errorf("%w: compound requirement has no parts", ErrInvalidRequirement)
		}
		for i, part := range r.Parts {
			if err := validateRequirement(part); err != nil {
				return fmt.Errorf("part %d: %w", i, err)
			}
		}
	case nil:
		return fmt.Errorf("%w: nil requirement", ErrInvalidRequirement)
	default:
		return fmt.Errorf("%w: unsupported requirement %T", ErrInvalidRequirement, req)
	}
	return nil
}

// ============================================================================
// YAML decoding
// ============================================================================

type catalogFile struct {
	Badges []badgeSpec `yaml:"badges"`
}

type badgeSpec struct {
	ID            string            `yaml:"id"`
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	Icon          string            `yaml:"icon"`
	Tier          string            `yaml:"tier"`
	Category      string            `yaml:"category"`
	Dimension     string            `yaml:"dimension"`
	RequireAll    *bool             `yaml:"require_all"`
	Prerequisites []string          `yaml:"prerequisites"`
	UnlocksAt     *time.Time        `yaml:"unlocks_at"`
	ExpiresAt     *time.Time        `yaml:"expires_at"`
	Secret        bool              `yaml:"secret"`
	Requirements  []requirementSpec `yaml:"requirements"`
}

type requirementSpec struct {
	Kind          string            `yaml:"kind"`
	ActivityType  string            `yaml:"activity_type"`
	Dimension     string            `yaml:"dimension"`
	StreakType    string            `yaml:"streak_type"`
	Longest       bool              `yaml:"longest"`
	Metric        string            `yaml:"metric"`
	Criterion     string            `yaml:"criterion"`
	Target        float64           `yaml:"target"`
	MinValue      float64           `yaml:"min_value"`
	MinDimensions int               `yaml:"min_dimensions"`
	Parts         []requirementSpec `yaml:"parts"`
	Any           bool              `yaml:"any"`
}

// ParseBadgeCatalog decodes a YAML catalog. Malformed entries fail the whole
// catalog with model.ErrDataIntegrity.
func ParseBadgeCatalog(data []byte) (*BadgeCatalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parse badge catalog: %v", model.ErrDataIntegrity, err)
	}
	defs := make([]*model.BadgeDefinition, 0, len(file.Badges))
	for _, spec := range file.Badges {
		def, err := spec.definition()
		if err != nil {
			if !errors.Is(err, model.ErrDataIntegrity) {
				err = fmt.Errorf("%w: %w", model.ErrDataIntegrity, err)
			}
			return nil, err
		}
		defs = append(defs, def)
	}
	return NewBadgeCatalog(defs)
}

func (b badgeSpec) definition() (*model.BadgeDefinition, error) {
	def := &model.BadgeDefinition{
		ID:                   b.ID,
		Name:                 b.Name,
		Description:          b.Description,
		Icon:                 b.Icon,
		Tier:                 model.BadgeTier(strings.ToLower(b.Tier)),
		Category:             b.Category,
		RequireAll:           b.RequireAll == nil || *b.RequireAll,
		PrerequisiteBadgeIDs: b.Prerequisites,
		UnlocksAt:            b.UnlocksAt,
		ExpiresAt:            b.ExpiresAt,
		IsSecret:             b.Secret,
	}
	if b.Dimension != "" {
		d, err := model.ParseDimension(b.Dimension)
		if err != nil {
			return nil, fmt.Errorf("badge %s: %w", b.ID, err)
		}
		def.Dimension = &d
	}
	for i, rs := range b.Requirements {
		req, err := rs.requirement()
		if err != nil {
			return nil, fmt.Errorf("badge %s requirement %d: %w", b.ID, i, err)
		}
		def.Requirements = append(def.Requirements, req)
	}
	return def, nil
}

func (r requirementSpec) requirement() (model.Requirement, error) {
	var dim *model.Dimension
	if r.Dimension != "" {
		d, err := model.ParseDimension(r.Dimension)
		if err != nil {
			return nil, err
		}
		dim = &d
	}

	switch model.RequirementKind(strings.ToLower(r.Kind)) {
	case model.RequirementCount:
		return &model.CountRequirement{ActivityType: r.ActivityType, Dimension: dim, Target: int(r.Target)}, nil
	case model.RequirementStreak:
		return &model.StreakRequirement{StreakType: model.StreakType(r.StreakType), Longest: r.Longest, Target: int(r.Target)}, nil
	case model.RequirementRating:
		return &model.RatingRequirement{Dimension: dim, Target: int(r.Target)}, nil
	case model.RequirementLevel:
		return &model.LevelRequirement{Dimension: dim, Target: int(r.Target)}, nil
	case model.RequirementQuality:
		return &model.QualityRequirement{Metric: r.Metric, Target: r.Target}, nil
	case model.RequirementTime:
		return &model.TimeRequirement{Metric: r.Metric, Target: r.Target}, nil
	case model.RequirementMultiDimension:
		return &model.MultiDimensionRequirement{
			Criterion:     model.MultiDimensionCriterion(r.Criterion),
			MinValue:      r.MinValue,
			MinDimensions: r.MinDimensions,
		}, nil
	case model.RequirementCompound:
		compound := &model.CompoundRequirement{Any: r.Any}
		for i, ps := range r.Parts {
			part, err := ps.requirement()
			if err != nil {
				return nil, fmt.Errorf("part %d: %w", i, err)
			}
			compound.Parts = append(compound.Parts, part)
		}
		return compound, nil
	default:
		return nil, fmt.Errorf("%w: unknown requirement kind %q", ErrInvalidRequirement, r.Kind)
	}
}
