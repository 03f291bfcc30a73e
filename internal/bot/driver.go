package bot

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

// Submitter is the answer entry point shared with human clients.
type Submitter interface {
	SubmitAnswer(matchID, playerID string, sub domain.AnswerSubmission) (domain.AnswerEvent, error)
}

// Driver plays every bot seat of the matches it is attached to.
type Driver struct {
	submit    Submitter
	policies  map[Level]Policy
	afterFunc app.AfterFunc
	log       logrus.FieldLogger

	rndMu sync.Mutex
	rnd   *rand.Rand
	wg    sync.WaitGroup
}

type Option func(*Driver)

// WithSeed makes answer choice and think time reproducible.
func WithSeed(seed uint64) Option {
	return func(d *Driver) { d.rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

func WithAfterFunc(f app.AfterFunc) Option {
	return func(d *Driver) { d.afterFunc = f }
}

func NewDriver(submit Submitter, policies map[Level]Policy, logger logrus.FieldLogger, opts ...Option) *Driver {
	if policies == nil {
		policies = DefaultPolicies()
	}
	d := &Driver{
		submit:    submit,
		policies:  policies,
		afterFunc: app.RealAfterFunc,
		log:       logger.WithField("component", "bot"),
		rnd:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Attach starts one player goroutine per bot seat. Use it as an engine OnCreate hook.
func (d *Driver) Attach(m *app.Match) {
	for _, p := range m.Players() {
		if !domain.IsBot(p) {
			continue
		}
		d.wg.Add(1)
		go d.play(m, p)
	}
}

// Wait blocks until every attached bot saw its match end.
func (d *Driver) Wait() {
	d.wg.Wait()
}

func (d *Driver) policyFor(playerID string) Policy {
	level, err := ParseLevel(playerID)
	if err != nil {
		level = LevelMedium
	}
	if p, ok := d.policies[level]; ok {
		return p
	}
	return d.policies[LevelMedium]
}

func (d *Driver) play(m *app.Match, playerID string) {
	defer d.wg.Done()
	policy := d.policyFor(playerID)
	cursor := app.NewCursor(0)
	var seq uint64

	for {
		sub := m.Channel().Subscribe(cursor.Last())
		for ev := range sub.C {
			if !cursor.Apply(ev) {
				continue
			}
			switch ev.Type {
			case domain.EventQuestionAdvanced:
				payload, ok := ev.Payload.(domain.QuestionAdvancedPayload)
				if !ok {
					continue
				}
				seq++
				d.schedule(m, playerID, policy, payload.QuestionIndex, seq)
			case domain.EventMatchCompleted:
				sub.Cancel()
				return
			}
		}
		if !sub.Lagged() {
			return
		}
	}
}

func (d *Driver) schedule(m *app.Match, playerID string, policy Policy, index int, seq uint64) {
	q, ok := m.Question(index)
	if !ok {
		return
	}
	d.rndMu.Lock()
	answer := policy.Choose(q, d.rnd)
	delay := policy.Delay(d.rnd)
	d.rndMu.Unlock()

	d.afterFunc(delay, func() {
		_, err := d.submit.SubmitAnswer(m.ID(), playerID, domain.AnswerSubmission{
			Seq:             seq,
			QuestionIndex:   index,
			Answer:          answer,
			ClientElapsedMs: delay.Milliseconds(),
		})
		// the question may have closed before the bot answered
		if err != nil && !errors.Is(err, domain.ErrIllegalTransition) {
			d.log.WithFields(logrus.Fields{"match": m.ID(), "bot": playerID, "error": err}).Warn("bot answer rejected")
		}
	})
}
