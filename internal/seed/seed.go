package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"loop/internal/authz"
	"loop/internal/models"
	"loop/internal/repository"
	"loop/internal/service"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers       int
	NumLoops       int
	MaxBranchDepth int
	// BranchChance is the probability that a loop grows another branch.
	BranchChance  float64
	StartingCoins int64
	MaxDays       int
	RandomSeed    int64
	ShouldClean   bool
	DryRun        bool
}

// DefaultOptions is the preset used by loopctl seed.
func DefaultOptions() Options {
	return Options{
		NumUsers:       25,
		NumLoops:       60,
		MaxBranchDepth: service.DefaultMaxBranchDepth,
		BranchChance:   0.45,
		StartingCoins:  500,
		MaxDays:        30,
	}
}

// Report counts what a seeding run created.
type Report struct {
	Profiles     int `json:"profiles" yaml:"profiles"`
	Follows      int `json:"follows" yaml:"follows"`
	Circles      int `json:"circles" yaml:"circles"`
	Roots        int `json:"roots" yaml:"roots"`
	Branches     int `json:"branches" yaml:"branches"`
	Interactions int `json:"interactions" yaml:"interactions"`
	Comments     int `json:"comments" yaml:"comments"`
	Gifts        int `json:"gifts" yaml:"gifts"`
}

// Seeder writes through the service layer so depth limits and counters hold
// for seeded data exactly as they do for API traffic. Side effects are not
// published.
type Seeder struct {
	db       *gorm.DB
	opts     Options
	factory  *Factory
	circles  *service.CircleService
	loops    *service.LoopService
	counters *service.CounterService
	comments *service.CommentService
	gifts    *service.GiftService
}

// NewSeeder wires services over db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	if opts.MaxBranchDepth <= 0 {
		opts.MaxBranchDepth = service.DefaultMaxBranchDepth
	}
	loopRepo := repository.NewLoopRepository(db)
	counterRepo := repository.NewCounterRepository(db)
	interactionRepo := repository.NewInteractionRepository(db)
	circleRepo := repository.NewCircleRepository(db)
	followRepo := repository.NewFollowRepository(db)
	checker := authz.NewChecker(repository.NewProfileRepository(db), circleRepo)

	return &Seeder{
		db:       db,
		opts:     opts,
		factory:  NewFactory(db, opts),
		circles:  service.NewCircleService(circleRepo, checker),
		loops:    service.NewLoopService(loopRepo, counterRepo, interactionRepo, circleRepo, followRepo, checker, nil, opts.MaxBranchDepth),
		counters: service.NewCounterService(counterRepo, interactionRepo, loopRepo, circleRepo, followRepo, checker, nil),
		comments: service.NewCommentService(repository.NewCommentRepository(db), counterRepo, loopRepo, circleRepo, followRepo, checker, nil),
		gifts:    service.NewGiftService(repository.NewGiftRepository(db), loopRepo, circleRepo, followRepo, checker, nil),
	}
}

// Seed populates the database with sample data.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Report, error) {
	return NewSeeder(db, opts).Run(ctx)
}

// Run executes one seeding pass.
func (s *Seeder) Run(ctx context.Context) (*Report, error) {
	slog.Info("seeding database", "users", s.opts.NumUsers, "loops", s.opts.NumLoops, "dry_run", s.opts.DryRun)
	report := &Report{}

	if s.opts.ShouldClean && !s.opts.DryRun {
		if err := clearData(ctx, s.db); err != nil {
			slog.Warn("could not clear existing data, continuing", "error", err)
		}
	}

	profiles, err := s.seedProfiles(ctx, report)
	if err != nil {
		return nil, fmt.Errorf("failed to create profiles: %w", err)
	}
	if s.opts.DryRun || len(profiles) == 0 {
		return report, nil
	}

	if err := s.seedFollows(ctx, profiles, report); err != nil {
		return nil, fmt.Errorf("failed to create follows: %w", err)
	}

	circles, err := Circles(ctx, s.db, profiles[0])
	if err != nil {
		return nil, err
	}
	report.Circles = len(circles)
	for _, c := range circles {
		for _, i := range s.factory.Pick(len(profiles), len(profiles)/2) {
			if err := s.circles.Join(ctx, c.ID, profiles[i].ID); err != nil {
				return nil, fmt.Errorf("failed to join circle %s: %w", c.Slug, err)
			}
		}
	}

	loops, err := s.seedLoops(ctx, profiles, circles, report)
	if err != nil {
		return nil, fmt.Errorf("failed to create loops: %w", err)
	}

	if err := s.seedActivity(ctx, profiles, loops, report); err != nil {
		return nil, fmt.Errorf("failed to create activity: %w", err)
	}

	slog.Info("seeding completed",
		"profiles", report.Profiles, "follows", report.Follows, "circles", report.Circles,
		"roots", report.Roots, "branches", report.Branches,
		"interactions", report.Interactions, "comments", report.Comments, "gifts", report.Gifts)
	return report, nil
}

func clearData(ctx context.Context, db *gorm.DB) error {
	slog.Info("clearing existing data")
	// Children before parents so foreign keys hold on every driver.
	for _, table := range []string{
		"notifications", "outbox_events", "gifts", "comments", "interactions",
		"loop_stats", "loops", "circle_members", "circles", "streams", "follows", "profiles",
	} {
		if err := db.WithContext(ctx).Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

func (s *Seeder) seedProfiles(ctx context.Context, report *Report) ([]*models.Profile, error) {
	profiles := make([]*models.Profile, 0, s.opts.NumUsers)
	for i := 0; i < s.opts.NumUsers; i++ {
		p, err := s.factory.CreateProfile(ctx)
		if err != nil {
			// Username collisions are possible with generated names.
			slog.Warn("skipping profile", "error", err)
			continue
		}
		profiles = append(profiles, p)
	}
	report.Profiles = len(profiles)
	return profiles, nil
}

func (s *Seeder) seedFollows(ctx context.Context, profiles []*models.Profile, report *Report) error {
	for i, p := range profiles {
		for _, j := range s.factory.Pick(len(profiles), 1+s.factory.Intn(len(profiles)/2+1)) {
			if j == i {
				continue
			}
			if err := s.factory.CreateFollow(ctx, p, profiles[j]); err != nil {
				return err
			}
			report.Follows++
		}
	}
	return nil
}

func (s *Seeder) seedLoops(ctx context.Context, profiles []*models.Profile, circles []models.Circle, report *Report) ([]*models.Loop, error) {
	all := make([]*models.Loop, 0, s.opts.NumLoops*2)
	for i := 0; i < s.opts.NumLoops; i++ {
		author := profiles[s.factory.Intn(len(profiles))]
		in := service.CreateLoopInput{AuthorID: author.ID, Content: s.factory.RandomContent()}
		if len(circles) > 0 && s.factory.Chance(0.2) {
			// Circle posts go through the owner, who is always a member.
			c := circles[s.factory.Intn(len(circles))]
			in.AuthorID = c.OwnerID
			in.CircleID = &c.ID
		} else if s.factory.Chance(0.1) {
			in.Visibility = models.VisibilityFollowers
		}

		root, err := s.loops.CreateRoot(ctx, in)
		if err != nil {
			return nil, err
		}
		if err := s.factory.Backdate(ctx, root); err != nil {
			return nil, err
		}
		report.Roots++
		all = append(all, root)

		branches, err := s.growBranches(ctx, profiles, root, report)
		if err != nil {
			return nil, err
		}
		all = append(all, branches...)
	}
	return all, nil
}

// growBranches extends the tree under parent until chance stops it or the
// depth ceiling is reached.
func (s *Seeder) growBranches(ctx context.Context, profiles []*models.Profile, parent *models.Loop, report *Report) ([]*models.Loop, error) {
	var out []*models.Loop
	for parent.Depth < s.opts.MaxBranchDepth && s.factory.Chance(s.opts.BranchChance) {
		author := profiles[s.factory.Intn(len(profiles))]
		if parent.Visibility == models.VisibilityFollowers || parent.CircleID != nil {
			author = &models.Profile{ID: parent.AuthorID}
		}
		branch, err := s.loops.CreateBranch(ctx, service.CreateBranchInput{
			AuthorID: author.ID,
			ParentID: parent.ID,
			Content:  s.factory.RandomContent(),
		})
		if err != nil {
			return nil, err
		}
		report.Branches++
		out = append(out, branch)
		parent = branch
	}
	return out, nil
}

func (s *Seeder) seedActivity(ctx context.Context, profiles []*models.Profile, loops []*models.Loop, report *Report) error {
	for _, loop := range loops {
		if loop.Visibility != models.VisibilityPublic || loop.CircleID != nil {
			continue
		}
		for _, i := range s.factory.Pick(len(profiles), s.factory.Intn(len(profiles)/2+1)) {
			actor := profiles[i]
			if err := s.interact(ctx, actor.ID, loop.ID, report); err != nil {
				return err
			}
		}

		if s.factory.Chance(0.3) {
			commenter := profiles[s.factory.Intn(len(profiles))]
			if _, err := s.comments.CreateComment(ctx, service.CreateCommentInput{
				UserID: commenter.ID,
				LoopID: loop.ID,
				Body:   s.factory.faker.Sentence(8),
			}); err != nil {
				return err
			}
			report.Comments++
		}

		if s.factory.Chance(0.1) {
			sender := profiles[s.factory.Intn(len(profiles))]
			if sender.ID == loop.AuthorID {
				continue
			}
			options := models.GiftOptions()
			_, err := s.gifts.Send(ctx, service.SendGiftInput{
				SenderID: sender.ID,
				LoopID:   loop.ID,
				GiftType: options[s.factory.Intn(len(options))].Type,
			})
			switch {
			case err == nil:
				report.Gifts++
			case isConflict(err):
				// Sender ran out of coins.
			default:
				return err
			}
		}
	}
	return nil
}

func (s *Seeder) interact(ctx context.Context, userID, loopID uuid.UUID, report *Report) error {
	for _, typ := range []models.InteractionType{models.InteractionView, models.InteractionLike, models.InteractionSave, models.InteractionShare} {
		if typ != models.InteractionView && !s.factory.Chance(0.4) {
			continue
		}
		_, err := s.counters.Interact(ctx, service.InteractInput{UserID: userID, LoopID: loopID, Type: typ, Action: models.ActionAdd})
		if err != nil {
			return err
		}
		report.Interactions++
	}
	return nil
}

func isConflict(err error) bool {
	return errors.Is(err, models.ErrConflict)
}
