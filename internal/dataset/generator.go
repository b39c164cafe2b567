// Package dataset fills a Rocket.Chat server with help requests and chat
// messages so that Smarti has conversations to analyse.
package dataset

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/auth"
	"github.com/Checker-Finance/apitests/internal/dispatch"
	"github.com/Checker-Finance/apitests/internal/fixtures"
	"github.com/Checker-Finance/apitests/internal/httpclient"
	"github.com/Checker-Finance/apitests/internal/rocketchat"
)

// SupportArea is the support area of every generated help request.
const SupportArea = "test"

// statusOK is what every Rocket.Chat REST call answers on success.
const statusOK = 200

// ErrInvalidCount is returned by Run for non-positive sizes.
var ErrInvalidCount = errors.New("request and message counts must be positive")

// Stats counts what a run created.
type Stats struct {
	Requests   int
	Messages   int
	Searchable int
}

// Generator creates help requests as one Rocket.Chat user.
type Generator struct {
	logger *zap.Logger
	rc     *rocketchat.Client
	disp   *dispatch.Dispatcher
	user   auth.Auth
}

func NewGenerator(logger *zap.Logger, rc *rocketchat.Client, disp *dispatch.Dispatcher, user auth.Auth) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{logger: logger, rc: rc, disp: disp, user: user}
}

// Run creates n help requests, each with between 1 and maxMessages random
// messages. About half of them also get the searchable sentence first.
func (g *Generator) Run(ctx context.Context, n, maxMessages int) (Stats, error) {
	var stats Stats
	if n <= 0 || maxMessages <= 0 {
		return stats, fmt.Errorf("%w: requests=%d messages=%d", ErrInvalidCount, n, maxMessages)
	}
	for i := range n {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := g.request(ctx, &stats); err != nil {
			return stats, fmt.Errorf("help request %d: %w", i+1, err)
		}
	}
	g.logger.Info("dataset.completed",
		zap.Int("requests", stats.Requests),
		zap.Int("messages", stats.Messages),
		zap.Int("searchable", stats.Searchable))
	return stats, nil
}

func (g *Generator) send(ctx context.Context, op string, call dispatch.Call) (*httpclient.Response, error) {
	return g.disp.Send(ctx, op, statusOK, call)
}

// request runs one login → help discussion → messages → logout cycle.
func (g *Generator) request(ctx context.Context, stats *Stats) (err error) {
	resp, err := g.send(ctx, "Login", func(ctx context.Context) (*httpclient.Response, error) {
		return g.rc.Login(ctx, g.user)
	})
	if err != nil {
		return err
	}
	session, err := rocketchat.DecodeSession(resp)
	if err != nil {
		return err
	}
	defer func() {
		_, lerr := g.send(ctx, "Logout", func(ctx context.Context) (*httpclient.Response, error) {
			return g.rc.Logout(ctx, session)
		})
		if err == nil {
			err = lerr
		}
	}()

	resp, err = g.send(ctx, "UserInfo", func(ctx context.Context) (*httpclient.Response, error) {
		return g.rc.UserInfo(ctx, session, session.UserID)
	})
	if err != nil {
		return err
	}
	var info rocketchat.UserInfoResponse
	if err := resp.JSON(&info); err != nil {
		return err
	}
	seeker, err := info.User.Participant()
	if err != nil {
		return err
	}

	resp, err = g.send(ctx, "CreateHelpRequest", func(ctx context.Context) (*httpclient.Response, error) {
		return g.rc.CreateHelpRequest(ctx, session, rocketchat.HelpRequest{
			SupportArea: SupportArea,
			Seeker:      seeker,
			Providers:   []rocketchat.Participant{seeker},
		})
	})
	if err != nil {
		return err
	}
	var help rocketchat.HelpResponse
	if err := resp.JSON(&help); err != nil {
		return err
	}
	if help.Room.ID == "" {
		return fmt.Errorf("help discussion response carries no room id")
	}
	stats.Requests++
	g.logger.Info("dataset.room_created",
		zap.String("room_id", help.Room.ID),
		zap.String("room", help.Room.Name))

	post := func(text string) error {
		_, err := g.send(ctx, "PostMessage", func(ctx context.Context) (*httpclient.Response, error) {
			return g.rc.PostMessage(ctx, session, help.Room.ID, text)
		})
		return err
	}
	if fixtures.Coin() {
		if err := post(fixtures.SearchableSentence); err != nil {
			return err
		}
		stats.Searchable++
	}
	for range fixtures.Intn(1, maxMessages) {
		if err := post(fixtures.RandomParagraph()); err != nil {
			return err
		}
		stats.Messages++
	}
	return nil
}
