package gcsclient

import (
	"context"
	"fmt"

	"google.golang.org/api/cloudresourcemanager/v1"
	"google.golang.org/api/option"
)

// ProjectLister enumerates the projects visible to the caller's identity.
type ProjectLister interface {
	ListProjects(ctx context.Context, pageToken string) (*ProjectPage, error)
}

// projectService backs ProjectLister with the Cloud Resource Manager API.
type projectService struct {
	service *cloudresourcemanager.Service
}

func newProjectService(ctx context.Context, opts ...option.ClientOption) (*projectService, error) {
	svc, err := cloudresourcemanager.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &projectService{service: svc}, nil
}

// ListProjects returns one page of the project directory. Lifecycle state is
// passed through unfiltered; callers decide what counts as usable.
func (p *projectService) ListProjects(ctx context.Context, pageToken string) (*ProjectPage, error) {
	call := p.service.Projects.List().Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	page := &ProjectPage{NextPageToken: resp.NextPageToken}
	for _, proj := range resp.Projects {
		page.Projects = append(page.Projects, &Project{
			ID:             proj.ProjectId,
			Name:           proj.Name,
			LifecycleState: proj.LifecycleState,
		})
	}
	return page, nil
}
