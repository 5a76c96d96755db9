package di

import (
	"context"
	"path/filepath"
	"testing"

	"helpcy/internal/config"
	"helpcy/internal/models"
	"helpcy/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ServiceContainerTestSuite exercises the container with the in-memory backends
type ServiceContainerTestSuite struct {
	suite.Suite
	Config    *config.Config
	Container *ServiceContainer
}

func TestServiceContainerTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceContainerTestSuite))
}

func (suite *ServiceContainerTestSuite) SetupTest() {
	suite.Config = config.Default()
	suite.Config.AI.Provider = "none"
	suite.Container = NewServiceContainer(suite.Config, observability.NewNopLogger())
	require.NoError(suite.T(), suite.Container.Initialize(context.Background()))
}

func (suite *ServiceContainerTestSuite) TearDownTest() {
	require.NoError(suite.T(), suite.Container.Shutdown(context.Background()))
}

func (suite *ServiceContainerTestSuite) TestServicesAreRegistered() {
	conversation, err := suite.Container.GetConversationService()
	suite.NoError(err)
	suite.NotNil(conversation)

	catalog, err := suite.Container.GetCatalog()
	suite.NoError(err)
	suite.Contains(catalog.AllCategories(), "Vandalism")

	_, err = suite.Container.GetClassifier()
	suite.NoError(err)
	_, err = suite.Container.GetDraftStore()
	suite.NoError(err)
	_, err = suite.Container.GetReportRepository()
	suite.NoError(err)
	_, err = suite.Container.GetMediaStore()
	suite.NoError(err)

	suite.Nil(suite.Container.GetDatabase(), "the memory store opens no database")
	suite.Nil(suite.Container.GetBot(), "telegram is disabled by default")
	suite.NotNil(suite.Container.GetMetrics())

	w, err := suite.Container.GetWorker()
	suite.NoError(err)
	suite.Equal("draft-cleanup", w.GetInstance())
	suite.True(w.GetStatus().IsRunning, "the container starts lifecycle services")
}

func (suite *ServiceContainerTestSuite) TestUnknownService() {
	_, err := suite.Container.GetService("nonexistent")
	suite.Error(err)

	_, err = GetServiceAs[*ServiceContainer](suite.Container, "catalog")
	suite.Error(err, "wrong type is reported")
}

func (suite *ServiceContainerTestSuite) TestConversationWorksEndToEnd() {
	ctx := context.Background()
	conversation, err := suite.Container.GetConversationService()
	suite.Require().NoError(err)

	action, err := conversation.Dispatch(ctx, models.NewLocationEvent(11, 35.1, 33.3))
	suite.Require().NoError(err)
	suite.Equal(models.ActionPromptForMedia, action.Type)

	// without a provider the classifier falls back and still reaches review
	media, err := suite.Container.GetMediaStore()
	suite.Require().NoError(err)
	ref, err := media.Put(ctx, 11, models.MediaPhoto, []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg")
	suite.Require().NoError(err)
	action, err = conversation.Dispatch(ctx, models.NewMediaEvent(11, models.MediaPhoto, ref))
	suite.Require().NoError(err)
	suite.Equal(models.ActionShowReviewScreen, action.Type)
}

func TestServiceContainer_TelegramEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.AI.Provider = "none"
	cfg.Telegram.Enabled = true
	cfg.Telegram.BotToken = "123:abc"

	container := NewServiceContainer(cfg, observability.NewNopLogger())
	require.NoError(t, container.Initialize(context.Background()))
	defer func() { _ = container.Shutdown(context.Background()) }()

	assert.NotNil(t, container.GetBot())
}

func TestServiceContainer_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Telegram.Enabled = true

	container := NewServiceContainer(cfg, observability.NewNopLogger())
	assert.Error(t, container.Initialize(context.Background()), "enabled telegram needs a token")
}

func TestServiceContainer_SQLStore(t *testing.T) {
	cfg := config.Default()
	cfg.AI.Provider = "none"
	cfg.Store.Driver = "sql"
	cfg.Database.Driver = "sqlite"
	cfg.Database.URL = "file:" + filepath.Join(t.TempDir(), "helpcy.db") + "?_pragma=busy_timeout(5000)"

	container := NewServiceContainer(cfg, observability.NewNopLogger())
	require.NoError(t, container.Initialize(context.Background()))
	require.NotNil(t, container.GetDatabase())

	conversation, err := container.GetConversationService()
	require.NoError(t, err)
	action, err := conversation.Dispatch(context.Background(), models.NewLocationEvent(12, 35.1, 33.3))
	require.NoError(t, err)
	assert.Equal(t, models.ActionPromptForMedia, action.Type)

	require.NoError(t, container.Shutdown(context.Background()))
}

func TestServiceContainer_DraftExpiryDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.AI.Provider = "none"
	cfg.Store.DraftTTL = 0

	container := NewServiceContainer(cfg, observability.NewNopLogger())
	require.NoError(t, container.Initialize(context.Background()))
	defer func() { _ = container.Shutdown(context.Background()) }()

	_, err := container.GetWorker()
	assert.Error(t, err)
}

func TestServiceContainer_ShutdownStopsWorker(t *testing.T) {
	cfg := config.Default()
	cfg.AI.Provider = "none"

	container := NewServiceContainer(cfg, observability.NewNopLogger())
	require.NoError(t, container.Initialize(context.Background()))
	w, err := container.GetWorker()
	require.NoError(t, err)

	require.NoError(t, container.Shutdown(context.Background()))
	assert.False(t, w.GetStatus().IsRunning)
}
