//go:build integration

package scenario

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"github.com/Checker-Finance/apitests/internal/auth"
	"github.com/Checker-Finance/apitests/internal/dispatch"
	"github.com/Checker-Finance/apitests/internal/smarti"
)

// SmartiIntegrationSuite runs the current-API scenarios against a live
// instance named by SMARTI_URL, SMARTI_USERNAME and SMARTI_PASSWORD.
type SmartiIntegrationSuite struct {
	suite.Suite
	runner *Runner
}

func (s *SmartiIntegrationSuite) SetupSuite() {
	baseURL := os.Getenv("SMARTI_URL")
	if baseURL == "" {
		s.T().Skip("SMARTI_URL not set")
	}
	username := os.Getenv("SMARTI_USERNAME")
	if username == "" {
		username = "admin"
	}
	password := os.Getenv("SMARTI_PASSWORD")
	if password == "" {
		password = "admin"
	}

	logger := zaptest.NewLogger(s.T())
	client := smarti.NewClient(logger, baseURL, nil, nil)
	sc, err := NewSuite(logger, client, dispatch.New(logger), auth.FromCredentials(username, password), Options{Channels: 2, Messages: 10})
	s.Require().NoError(err)
	s.runner = NewRunner(logger, sc, nil, baseURL)
}

func (s *SmartiIntegrationSuite) run(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	summary, err := s.runner.Run(ctx, []string{name})
	s.Require().NoError(err)
	s.Require().Len(summary.Results, 1)
	s.True(summary.Results[0].Passed, summary.Results[0].Error)
}

func (s *SmartiIntegrationSuite) TestClientWebservice()       { s.run(NameClientWebservice) }
func (s *SmartiIntegrationSuite) TestConversationWebservice() { s.run(NameConversationWebservice) }
func (s *SmartiIntegrationSuite) TestAllUserRequests()        { s.run(NameAllUserRequests) }
func (s *SmartiIntegrationSuite) TestFull()                   { s.run(NameFull) }

func TestSmartiIntegrationSuite(t *testing.T) {
	suite.Run(t, new(SmartiIntegrationSuite))
}
