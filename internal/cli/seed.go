package cli

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fitkeep/fitdb/model"
)

var (
	seedNamespace = uuid.MustParse("6f1c3e52-29a4-4c55-9a57-3f0d2b8e4c11")
	seedEpoch     = time.Date(2024, 3, 1, 6, 30, 0, 0, time.UTC)
)

const (
	seedRecordsPerActivity = 60
	seedLapsPerActivity    = 3
	seedSampleInterval     = 5 * time.Second
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(opts *RootOptions) *cobra.Command {
	var users, activities int
	cmd := newCommand("seed", "Fill the database with deterministic sample data", cobra.NoArgs, func(cmd *cobra.Command, args []string) error {
		if users < 1 || activities < 0 {
			return fmt.Errorf("--users must be positive and --activities non-negative")
		}
		return withStore(opts, func(s *model.Store, logger *zap.Logger) error {
			for i := 0; i < users; i++ {
				if err := seedUser(s, i, activities); err != nil {
					return err
				}
			}
			logger.Info("seeded", zap.Int("users", users), zap.Int("activities", users*activities))
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users with %d activities each\n", users, activities)
			return nil
		})
	})
	cmd.Flags().IntVar(&users, "users", 3, "number of users")
	cmd.Flags().IntVar(&activities, "activities", 10, "activities per user")
	return cmd
}

func seedID(format string, args ...any) uuid.UUID {
	return uuid.NewSHA1(seedNamespace, []byte(fmt.Sprintf(format, args...)))
}

// SeedUserKey returns the key of the i-th seeded user.
func SeedUserKey(i int) model.UserKey {
	return model.UserKey{ID: seedID("user/%d", i)}
}

func seedUser(s *model.Store, i, activities int) error {
	user := SeedUserKey(i)
	created := model.TimestampOf(seedEpoch)
	err := s.PutUser(user, model.User{
		Name:    fmt.Sprintf("Runner %d", i+1),
		Email:   fmt.Sprintf("runner%d@example.com", i+1),
		Created: created,
	})
	if err != nil {
		return err
	}

	shoes := model.GearKey{User: user.ID, ID: seedID("user/%d/gear/shoes", i)}
	bike := model.GearKey{User: user.ID, ID: seedID("user/%d/gear/bike", i)}
	if err := s.PutGear(shoes, model.Gear{Name: "Trail shoes", Kind: "shoes", Created: created}); err != nil {
		return err
	}
	if err := s.PutGear(bike, model.Gear{Name: "Road bike", Kind: "bike", Created: created}); err != nil {
		return err
	}

	client := model.ClientKey{User: user.ID, ID: seedID("user/%d/client", i)}
	err = s.PutClient(client, model.Client{
		Name:         "Sync app",
		SecretHash:   seedID("user/%d/secret", i).NodeID(),
		RedirectURIs: []string{"https://sync.example.com/callback"},
		Created:      created,
	})
	if err != nil {
		return err
	}

	for j := 0; j < activities; j++ {
		start := seedEpoch.Add(time.Duration(j)*24*time.Hour + time.Duration(i)*time.Minute)
		sport, gear := "running", shoes
		if j%4 == 2 {
			sport, gear = "cycling", bike
		}
		key, err := s.ImportActivity(user, seedActivity(start, sport))
		if err != nil {
			return err
		}
		if j%2 == 0 {
			if err := s.AssignGear(key, gear); err != nil {
				return err
			}
		}
	}
	return nil
}

func seedActivity(start time.Time, sport string) model.Activity {
	speed := 3.2
	if sport == "cycling" {
		speed = 8.5
	}
	var a model.Activity
	a.Session = model.Session{
		Sport:    sport,
		Start:    model.TimestampOf(start),
		Duration: int64(seedRecordsPerActivity * seedSampleInterval / time.Millisecond),
	}
	var hrSum int
	for k := 0; k < seedRecordsPerActivity; k++ {
		hr := 120 + int(20*math.Sin(float64(k)/8))
		hrSum += hr
		if hr > a.Session.MaxHeartRate {
			a.Session.MaxHeartRate = hr
		}
		a.Records.Items = append(a.Records.Items, model.Record{
			Offset:    int64(time.Duration(k) * seedSampleInterval / time.Millisecond),
			Lat:       47.37 + float64(k)*0.0001,
			Lon:       8.54 + float64(k)*0.0001,
			Altitude:  410 + 5*math.Sin(float64(k)/10),
			HeartRate: hr,
			Speed:     speed,
		})
	}
	a.Session.AvgHeartRate = hrSum / seedRecordsPerActivity
	a.Session.Distance = speed * float64(a.Session.Duration) / 1000

	lapDur := a.Session.Duration / seedLapsPerActivity
	for k := 0; k < seedLapsPerActivity; k++ {
		a.Laps.Items = append(a.Laps.Items, model.Lap{
			Start:    a.Session.Start + model.Timestamp(int64(k)*lapDur),
			Duration: lapDur,
			Distance: a.Session.Distance / seedLapsPerActivity,
		})
	}
	return a
}
