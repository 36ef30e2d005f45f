package docker

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/pkg/jsonmessage"
)

// =============================================================================
// Image Build
// =============================================================================

// BuildImage builds an image from a local context directory and tags it.
// Build progress is streamed to output; a failing build step surfaces as an
// error wrapping ErrImageBuildFailed.
func (d *DockerClient) BuildImage(spec BuildSpec, output io.Writer) error {
	ctx := context.Background()

	if output == nil {
		output = io.Discard
	}

	dockerfile := spec.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	if !dockerfileWithin(dockerfile) {
		return NewDockerError("BuildImage", "image", spec.Tag, "dockerfile must be inside the build context", ErrImageBuildFailed)
	}

	buildCtx, err := tarBuildContext(spec.ContextDir)
	if err != nil {
		return NewDockerError("BuildImage", "image", spec.Tag, err.Error(), ErrImageBuildFailed)
	}
	defer buildCtx.Close()

	resp, err := d.cli.ImageBuild(ctx, buildCtx, build.ImageBuildOptions{
		Tags:       []string{spec.Tag},
		Dockerfile: dockerfile,
		Remove:     true,
	})
	if err != nil {
		return NewDockerError("BuildImage", "image", spec.Tag, err.Error(), ErrImageBuildFailed)
	}
	defer resp.Body.Close()

	// The daemon streams progress as JSON messages; a failing build step
	// arrives as an error message in the stream, not as an HTTP error.
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, output, 0, false, nil); err != nil {
		return NewDockerError("BuildImage", "image", spec.Tag, err.Error(), ErrImageBuildFailed)
	}

	return nil
}

// tarBuildContext packages a context directory as the tar stream the Docker
// build API expects. Paths inside the archive are relative to the context
// root. Entries named in .dockerignore are not honored here; the sensor-map
// build context is small enough that the daemon-side filtering suffices.
func tarBuildContext(contextDir string) (io.ReadCloser, error) {
	root, err := filepath.Abs(contextDir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	tw := tar.NewWriter(pw)

	go func() {
		walkErr := filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
			if err != nil {
				return err
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}

			info, err := entry.Info()
			if err != nil {
				return err
			}

			// Symlinks and other irregular files are skipped; the app
			// build context contains only regular files and directories.
			if !info.Mode().IsRegular() && !info.IsDir() {
				return nil
			}

			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = filepath.ToSlash(rel)
			if info.IsDir() {
				hdr.Name += "/"
			}

			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			_, err = io.Copy(tw, f)
			return err
		})

		if closeErr := tw.Close(); walkErr == nil {
			walkErr = closeErr
		}
		pw.CloseWithError(walkErr)
	}()

	return pr, nil
}

// dockerfileWithin reports whether the configured Dockerfile path stays
// inside the build context.
func dockerfileWithin(dockerfile string) bool {
	clean := filepath.ToSlash(filepath.Clean(dockerfile))
	return clean != ".." && !strings.HasPrefix(clean, "../") && !filepath.IsAbs(dockerfile)
}
