package isolate

import "errors"

var (
	ErrSpawnFailed = errors.New("failed to spawn worker")

	ErrImagePullFailed = errors.New("failed to pull image")
)
