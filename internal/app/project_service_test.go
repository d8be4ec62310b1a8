package app

import (
	"context"
	"encoding/base64"
	"errors"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcbrecon/internal/ai/aitest"
	"pcbrecon/internal/cache"
)

func TestDecodeImage(t *testing.T) {
	raw := []byte("\x89PNG\r\n")
	encoded := base64.StdEncoding.EncodeToString(raw)

	got, err := DecodeImage(encoded)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = DecodeImage("data:image/png;base64," + encoded)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = DecodeImage(base64.RawStdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = DecodeImage("")
	assert.ErrorIs(t, err, ErrImageInvalid)
	_, err = DecodeImage("data:image/png;base64,@@@")
	assert.ErrorIs(t, err, ErrImageInvalid)
}

func TestSniffImageMIME(t *testing.T) {
	mime, err := SniffImageMIME(pngBytes(t, color.White))
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	_, err = SniffImageMIME([]byte("just some text"))
	assert.ErrorIs(t, err, ErrImageInvalid)
	_, err = SniffImageMIME(nil)
	assert.ErrorIs(t, err, ErrImageInvalid)
}

func TestImageDigest_Stable(t *testing.T) {
	a := ImageDigest([]byte("board"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, ImageDigest([]byte("board")))
	assert.NotEqual(t, a, ImageDigest([]byte("board2")))
}

func TestProjectService_CreateProject(t *testing.T) {
	env := newTestEnv(t)
	env.llm.On("vision", aitest.Reply{Text: "  **Board Overview** An IoT gateway.  "})
	env.llm.On("text", aitest.Reply{Text: "Welcome to your gateway teardown!"})
	svc := NewProjectService(env.projects, env.messages, nil, nil, env.llm, testModels)

	img := pngBytes(t, color.RGBA{R: 10, G: 120, B: 40, A: 255})
	project, err := svc.CreateProject(context.Background(), CreateProjectInput{
		Name:      "  Gateway  ",
		ImagePath: "gateway.png",
		Image:     img,
	})
	require.NoError(t, err)
	assert.NotZero(t, project.ID)
	assert.Equal(t, "Gateway", project.Name)
	assert.Equal(t, "image/png", project.ImageMIME)
	assert.Equal(t, "**Board Overview** An IoT gateway.", project.Analysis)
	require.Len(t, project.ChatMessages, 1)
	assert.Equal(t, "bot", project.ChatMessages[0].Sender)
	assert.Equal(t, "Welcome to your gateway teardown!", project.ChatMessages[0].Message)

	req, ok := env.llm.Last("vision")
	require.True(t, ok)
	require.Len(t, req.Turns, 1)
	require.Len(t, req.Turns[0].Parts, 2)
	assert.Contains(t, req.Turns[0].Parts[0].Text, "**Board Overview**")
	require.NotNil(t, req.Turns[0].Parts[1].InlineData)
	assert.Equal(t, img, req.Turns[0].Parts[1].InlineData.Data)

	welcomeReq, ok := env.llm.Last("text")
	require.True(t, ok)
	assert.Contains(t, welcomeReq.Turns[0].Parts[0].Text, "'Gateway'")

	stored, err := svc.GetProject(project.ID)
	require.NoError(t, err)
	require.Len(t, stored.ChatMessages, 1)
}

func TestProjectService_CreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := NewProjectService(env.projects, env.messages, nil, nil, env.llm, testModels)
	img := pngBytes(t, color.White)

	_, err := svc.CreateProject(context.Background(), CreateProjectInput{Name: " ", ImagePath: "a.png", Image: img})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.CreateProject(context.Background(), CreateProjectInput{Name: "a", ImagePath: "", Image: img})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.CreateProject(context.Background(), CreateProjectInput{Name: "a", ImagePath: "a.txt", Image: []byte("hello")})
	assert.ErrorIs(t, err, ErrImageInvalid)
	assert.Zero(t, env.llm.Calls())
}

func TestProjectService_NameLimitCountsCharacters(t *testing.T) {
	env := newTestEnv(t)
	env.llm.Default = aitest.Reply{Text: "ok"}
	svc := NewProjectService(env.projects, env.messages, nil, nil, env.llm, testModels)
	img := pngBytes(t, color.White)

	name := strings.Repeat("板", maxProjectNameLength)
	project, err := svc.CreateProject(context.Background(), CreateProjectInput{Name: name, ImagePath: "a.png", Image: img})
	require.NoError(t, err)
	assert.Equal(t, name, project.Name)

	_, err = svc.CreateProject(context.Background(), CreateProjectInput{Name: name + "板", ImagePath: "a.png", Image: img})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestProjectService_AnalysisFailureStoresNothing(t *testing.T) {
	env := newTestEnv(t)
	env.llm.On("vision", aitest.Reply{Err: errors.New("quota exceeded")})
	svc := NewProjectService(env.projects, env.messages, nil, nil, env.llm, testModels)

	_, err := svc.CreateProject(context.Background(), CreateProjectInput{
		Name: "x", ImagePath: "x.png", Image: pngBytes(t, color.Black),
	})
	assert.ErrorIs(t, err, ErrAnalysisFailed)
	assert.ErrorContains(t, err, "quota exceeded")

	list, err := svc.ListProjects(0, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestProjectService_WelcomeFallback(t *testing.T) {
	env := newTestEnv(t)
	env.llm.On("vision", aitest.Reply{Text: "analysis"})
	env.llm.On("text", aitest.Reply{Err: errors.New("timeout")})
	svc := NewProjectService(env.projects, env.messages, nil, nil, env.llm, testModels)

	project, err := svc.CreateProject(context.Background(), CreateProjectInput{
		Name: "Thermostat", ImagePath: "t.png", Image: pngBytes(t, color.White),
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello! I've finished analyzing your Thermostat. How can I help?", project.ChatMessages[0].Message)
}

func TestProjectService_ReusesAnalysisForIdenticalImage(t *testing.T) {
	env := newTestEnv(t)
	env.llm.On("vision", aitest.Reply{Text: "first analysis"}, aitest.Reply{Text: "second analysis"})
	env.llm.Default = aitest.Reply{Text: "welcome"}
	svc := NewProjectService(env.projects, env.messages, nil, nil, env.llm, testModels)
	img := pngBytes(t, color.RGBA{B: 200, A: 255})

	first, err := svc.CreateProject(context.Background(), CreateProjectInput{Name: "a", ImagePath: "a.png", Image: img})
	require.NoError(t, err)
	second, err := svc.CreateProject(context.Background(), CreateProjectInput{Name: "b", ImagePath: "b.png", Image: img})
	require.NoError(t, err)

	assert.Equal(t, "first analysis", first.Analysis)
	assert.Equal(t, "first analysis", second.Analysis)
	assert.Equal(t, first.ImageDigest, second.ImageDigest)
}

func TestProjectService_AnalysisCacheHit(t *testing.T) {
	env := newTestEnv(t)
	client, _ := newTestRedis(t)
	analysisCache := cache.NewAnalysisCache(client, time.Hour)
	img := pngBytes(t, color.RGBA{R: 77, A: 255})
	require.NoError(t, analysisCache.SetAnalysis(context.Background(), ImageDigest(img), "cached analysis"))
	env.llm.Default = aitest.Reply{Text: "welcome"}
	svc := NewProjectService(env.projects, env.messages, analysisCache, nil, env.llm, testModels)

	project, err := svc.CreateProject(context.Background(), CreateProjectInput{Name: "c", ImagePath: "c.png", Image: img})
	require.NoError(t, err)
	assert.Equal(t, "cached analysis", project.Analysis)
	_, called := env.llm.Last("vision")
	assert.False(t, called)
}

func TestProjectService_DeleteProject(t *testing.T) {
	env := newTestEnv(t)
	svc := NewProjectService(env.projects, env.messages, nil, nil, env.llm, testModels)
	p := env.seedProject(t, "analysis")

	require.NoError(t, svc.DeleteProject(context.Background(), p.ID))
	_, err := svc.GetProject(p.ID)
	assert.ErrorIs(t, err, ErrProjectNotFound)
	assert.ErrorIs(t, svc.DeleteProject(context.Background(), p.ID), ErrProjectNotFound)
	assert.ErrorIs(t, svc.DeleteProject(context.Background(), 0), ErrInvalidInput)
}
