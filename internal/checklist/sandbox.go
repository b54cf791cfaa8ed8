package checklist

import (
	"bytes"
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// SandboxRunner runs tests_pass/command checks inside a throwaway
// container, one per invocation, rather than directly on the host. Used
// when checklist.sandbox=true in configuration.
type SandboxRunner struct {
	cli   *client.Client
	image string
}

// NewSandboxRunner connects to the local Docker daemon. image is the
// container used to execute checks (it must already contain whatever test
// runners the project needs).
func NewSandboxRunner(image string) (*SandboxRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &SandboxRunner{cli: cli, image: image}, nil
}

func (s *SandboxRunner) RunCommand(ctx context.Context, argv []string, dir string) (int, string, error) {
	resp, err := s.cli.ContainerCreate(ctx, &container.Config{
		Image:      s.image,
		Cmd:        argv,
		WorkingDir: "/workspace",
		Tty:        false,
	}, &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: dir, Target: "/workspace"},
		},
		AutoRemove: false,
	}, nil, nil, "")
	if err != nil {
		return -1, "", fmt.Errorf("create sandbox container: %w", err)
	}
	defer s.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})

	if err := s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return -1, "", fmt.Errorf("start sandbox container: %w", err)
	}

	statusCh, errCh := s.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case err := <-errCh:
		if err != nil {
			return -1, "", fmt.Errorf("wait for sandbox container: %w", err)
		}
	case st := <-statusCh:
		exitCode = int(st.StatusCode)
	}

	out, err := s.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return exitCode, "", nil
	}
	defer out.Close()

	var buf bytes.Buffer
	_, _ = stdcopy.StdCopy(&buf, &buf, out)

	return exitCode, buf.String(), nil
}
