package cli

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"quiz-battle-service/internal/app"
	redisstore "quiz-battle-service/internal/infra/redis"
)

// newJanitor schedules the periodic engine sweep. With a Redis match store it
// also refreshes the liveness keys of live matches.
func newJanitor(engine *app.Engine, liveness *redisstore.MatchStore, interval time.Duration, log logrus.FieldLogger) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	log = log.WithField("component", "janitor")

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if n := engine.Sweep(time.Now()); n > 0 {
				log.WithField("archived", n).Info("sweep finished")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	if liveness != nil {
		_, err = sched.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				defer cancel()
				for _, m := range liveness.All() {
					if err := liveness.Touch(ctx, m.ID()); err != nil {
						log.WithFields(logrus.Fields{"match": m.ID(), "error": err}).Warn("liveness refresh failed")
					}
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}
	return sched, nil
}
