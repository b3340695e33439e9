package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mfolio/internal/model"
	appErr "github.com/xxxsen/mfolio/internal/pkg/errors"
	"github.com/xxxsen/mfolio/internal/repo"
	"github.com/xxxsen/mfolio/test/testutil"
)

func seedContent(t *testing.T, contents *repo.ContentRepo) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, contents.CreateFact(ctx, &model.Fact{
		ID: "f1", Title: "Skills", Content: "Proficient in TypeScript and Python.", Keywords: []string{"typescript", "python"}, Priority: 1, Ctime: 1, Mtime: 1,
	}))
	require.NoError(t, contents.CreateFact(ctx, &model.Fact{
		ID: "f2", Title: "Hobbies", Content: "Guitar, 100% analog.", Ctime: 2, Mtime: 2,
	}))
	require.NoError(t, contents.CreateProject(ctx, &model.Project{
		ID: "p1", Title: "Portfolio Site", Slug: "portfolio", Summary: "A react website.", Features: []string{"SSR"}, Tools: []string{"react"}, Ctime: 3, Mtime: 3,
	}))
	require.NoError(t, contents.CreateProjectImage(ctx, &model.ProjectImage{ID: "i2", ProjectID: "p1", URL: "https://img/2.png", SortOrder: 2}))
	require.NoError(t, contents.CreateProjectImage(ctx, &model.ProjectImage{ID: "i1", ProjectID: "p1", URL: "https://img/1.png", SortOrder: 1}))
}

func TestContentRepo(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	testutil.ResetTables(t, db)
	contents := repo.NewContentRepo(db)
	seedContent(t, contents)
	ctx := context.Background()

	facts, err := contents.ListFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	require.Equal(t, "f1", facts[0].ID)
	require.Equal(t, []string{"typescript", "python"}, facts[0].Keywords)

	project, err := contents.GetProject(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, []string{"SSR"}, project.Features)
	_, err = contents.GetProject(ctx, "missing")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	keys := []model.ContentKey{
		{ContentType: model.ContentTypeFact, ContentID: "f2"},
		{ContentType: model.ContentTypeProject, ContentID: "p1"},
		{ContentType: model.ContentTypeProject, ContentID: "f1"},
	}
	items, err := contents.GetItems(ctx, keys)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.IsType(t, &model.Project{}, items[keys[1]])

	url, err := contents.FirstImageURL(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "https://img/1.png", url)
	url, err = contents.FirstImageURL(ctx, "none")
	require.NoError(t, err)
	require.Empty(t, url)

	found, err := contents.FindByText(ctx, []string{"react"}, model.AllContentTypes, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "p1", found[0].Key().ContentID)

	found, err = contents.FindByText(ctx, []string{"100%"}, []model.ContentType{model.ContentTypeFact}, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "f2", found[0].Key().ContentID)
}
