package config

import (
	_ "github.com/save-hub/save-hub/internal/remote/webdav"
)
