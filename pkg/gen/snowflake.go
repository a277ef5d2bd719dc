package gen

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("gen", fx.Provide(ProvideNode))

// ProvideNode returns the process-wide snowflake node. Node id 1 is fine for
// a single writer; multi-writer deployments override it at build time.
func ProvideNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
