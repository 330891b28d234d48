package ports

import "rezgo/internal/model"

// ShellRenderer turns an environment specification into executable text
// for one target shell.
type ShellRenderer interface {
	Shell() model.ShellType
	Render(spec model.EnvironmentSpecification) (string, error)
}
