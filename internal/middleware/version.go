package middleware

import (
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// APIVersion represents API version information
type APIVersion struct {
	Version string `json:"version"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// VersionMiddleware stamps responses with the API version and rejects
// unknown version prefixes.
type VersionMiddleware struct {
	supportedVersions map[string]APIVersion
	defaultVersion    string
}

func NewVersionMiddleware() *VersionMiddleware {
	return &VersionMiddleware{
		supportedVersions: map[string]APIVersion{
			"v1": {Version: "v1", Status: "active", Message: "Current stable API version"},
		},
		defaultVersion: "v1",
	}
}

// VersionHeader adds version information to response headers
func (vm *VersionMiddleware) VersionHeader(version string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-API-Version", version)

			if ver, exists := vm.supportedVersions[version]; exists {
				h.Set("X-API-Message", ver.Message)
			}

			return next(c)
		}
	}
}

// APIVersionResolver resolves the API version from the request path
func (vm *VersionMiddleware) APIVersionResolver() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			version := extractVersion(c.Request().URL.Path)
			if version == "" {
				c.Set("api_version", vm.defaultVersion)
				return next(c)
			}

			if _, supported := vm.supportedVersions[version]; !supported {
				return c.JSON(http.StatusNotFound, map[string]string{
					"error":              "Unsupported API version",
					"supported_versions": strings.Join(vm.versions(), ", "),
				})
			}
			c.Set("api_version", version)
			return next(c)
		}
	}
}

// extractVersion returns "v2" for "/v2/...", or "" when the path has no
// version prefix.
func extractVersion(path string) string {
	segment, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if len(segment) < 2 || segment[0] != 'v' {
		return ""
	}
	for _, r := range segment[1:] {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return segment
}

func (vm *VersionMiddleware) versions() []string {
	versions := make([]string, 0, len(vm.supportedVersions))
	for version := range vm.supportedVersions {
		versions = append(versions, version)
	}
	sort.Strings(versions)
	return versions
}
