package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/observability"
	"github.com/jmylchreest/vidpipe/internal/repository"
)

// ProfileSet is a set of encode profile names.
type ProfileSet map[string]struct{}

// NewProfileSet returns a set holding names.
func NewProfileSet(names ...string) ProfileSet {
	s := make(ProfileSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set.
func (s ProfileSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Add inserts names.
func (s ProfileSet) Add(names ...string) {
	for _, n := range names {
		s[n] = struct{}{}
	}
}

// Remove deletes names.
func (s ProfileSet) Remove(names ...string) {
	for _, n := range names {
		delete(s, n)
	}
}

// Without returns a copy of the set minus names.
func (s ProfileSet) Without(names ...string) ProfileSet {
	out := s.Clone()
	out.Remove(names...)
	return out
}

// Clone returns a copy of the set.
func (s ProfileSet) Clone() ProfileSet {
	out := make(ProfileSet, len(s))
	for n := range s {
		out[n] = struct{}{}
	}
	return out
}

// Sorted returns the names in lexical order.
func (s ProfileSet) Sorted() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FamilyTable maps course toggle names to the profile families they enable.
type FamilyTable struct {
	families       map[string][]string
	toggles        []string
	reviewToggle   string
	overrideToggle string
}

// NewFamilyTable builds a table from a toggle -> profiles mapping.
func NewFamilyTable(families map[string][]string) FamilyTable {
	t := FamilyTable{
		families:       make(map[string][]string, len(families)),
		reviewToggle:   models.ToggleReviewProc,
		overrideToggle: models.ToggleMobileOverride,
	}
	for toggle, profiles := range families {
		t.families[toggle] = append([]string(nil), profiles...)
		t.toggles = append(t.toggles, toggle)
	}
	sort.Strings(t.toggles)
	return t
}

// Family returns the profiles enabled by a toggle.
func (t FamilyTable) Family(toggle string) []string {
	return t.families[toggle]
}

// Toggles returns the toggle names in evaluation order.
func (t FamilyTable) Toggles() []string {
	return append([]string(nil), t.toggles...)
}

// Expand applies the precedence rules to a set of switched-on toggles:
// an unapproved review gate contributes only the review family, then mobile
// override contributes only its family, otherwise every other enabled
// toggle is unioned in.
func (t FamilyTable) Expand(toggles map[string]bool, reviewPending bool) ProfileSet {
	set := NewProfileSet()
	if toggles[t.reviewToggle] && reviewPending {
		set.Add(t.families[t.reviewToggle]...)
		return set
	}
	if toggles[t.overrideToggle] {
		set.Add(t.families[t.overrideToggle]...)
		return set
	}
	for _, toggle := range t.toggles {
		if toggle == t.reviewToggle || !toggles[toggle] {
			continue
		}
		set.Add(t.families[toggle]...)
	}
	return set
}

// ProfileResolver computes the encode profiles a video should have.
type ProfileResolver struct {
	families FamilyTable
	profiles repository.EncodeProfileRepository
	approval ApprovalChecker
	logger   *slog.Logger
}

// NewProfileResolver creates a resolver over the given family table.
func NewProfileResolver(families FamilyTable, profiles repository.EncodeProfileRepository) *ProfileResolver {
	return &ProfileResolver{
		families: families,
		profiles: profiles,
		approval: CourseHoldApproval{},
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (r *ProfileResolver) WithLogger(logger *slog.Logger) *ProfileResolver {
	r.logger = observability.WithComponent(logger, "profile_resolver")
	return r
}

// WithApproval sets the review approval strategy.
func (r *ProfileResolver) WithApproval(approval ApprovalChecker) *ProfileResolver {
	r.approval = approval
	return r
}

// Resolve returns the active profiles for a course. With a nil video the
// course-level baseline is returned and the review gate is not consulted.
// Unknown or inactive profile names are dropped.
func (r *ProfileResolver) Resolve(ctx context.Context, course *models.Course, video *models.Video) (ProfileSet, error) {
	if course == nil {
		return nil, configErr("resolve profiles", models.ErrCourseNotFound)
	}

	reviewPending := false
	if course.ReviewProc && video != nil {
		approved, err := r.approval.Approved(ctx, course, video)
		if err != nil {
			return nil, transientErr("check review approval", err)
		}
		reviewPending = !approved
	}

	raw := r.families.Expand(course.Toggles(), reviewPending)
	if len(raw) == 0 {
		return raw, nil
	}

	active, err := r.profiles.ActiveByNames(ctx, raw.Sorted())
	if err != nil {
		return nil, fmt.Errorf("loading active profiles: %w", err)
	}

	resolved := NewProfileSet()
	for _, p := range active {
		resolved.Add(p.Name)
	}
	if dropped := raw.Without(resolved.Sorted()...); len(dropped) > 0 {
		r.logger.DebugContext(ctx, "dropped inactive or unknown profiles",
			slog.String("course", course.VideoIDPrefix()),
			slog.Any("profiles", dropped.Sorted()),
		)
	}
	return resolved, nil
}
