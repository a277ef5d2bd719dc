package health

import (
	"net/http"

	"advocacy-engine/pkg/db"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
}

type health struct {
	conns *db.Conns
	redis *redis.Client
}

type HealthParams struct {
	fx.In
	Conns *db.Conns     `optional:"true"`
	Redis *redis.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	return &health{
		conns: p.Conns,
		redis: p.Redis,
	}
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  "healthly",
		Message: "OK",
	})
}

// Readiness reports 503 only when the primary store is unreachable. A dead
// mirror degrades reads but does not make the service unready.
func (h *health) Readiness(c *gin.Context) {
	this := &Health{
		Status:  "healthly",
		Message: "OK",
	}
	code := http.StatusOK

	deps := make([]Dependency, 0)
	if h.conns != nil {
		dep := checkGorm("primary", h.conns.Primary)
		if dep.Status != "healthly" {
			this.Status = "unhealthly"
			this.Message = "primary store unreachable"
			code = http.StatusServiceUnavailable
		}
		deps = append(deps, dep)

		if h.conns.Mirror != nil {
			mirror := checkGorm("mirror", h.conns.Mirror)
			if mirror.Status != "healthly" && this.Status == "healthly" {
				this.Status = "degraded"
			}
			deps = append(deps, mirror)
		}
	}

	if h.redis != nil {
		dep := Dependency{
			Name:    "redis",
			Status:  "healthly",
			Message: "OK",
		}

		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			dep.Status = "unhealthly"
			dep.Message = err.Error()
			if this.Status == "healthly" {
				this.Status = "degraded"
			}
		}

		deps = append(deps, dep)
	}

	this.Deps = deps

	c.JSON(code, this)
}

func checkGorm(name string, conn *gorm.DB) Dependency {
	dep := Dependency{
		Name:    name,
		Status:  "healthly",
		Message: "OK",
	}

	if conn == nil {
		dep.Status = "unhealthly"
		dep.Message = "not configured"
		return dep
	}

	sql, err := conn.DB()
	if err != nil {
		dep.Status = "unhealthly"
		dep.Message = err.Error()
		return dep
	}

	if err := sql.Ping(); err != nil {
		dep.Status = "unhealthly"
		dep.Message = err.Error()
	}

	return dep
}
