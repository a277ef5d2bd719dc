package oracle

import "go.uber.org/fx"

var Module = fx.Module("oracle",
	fx.Provide(NewAnalyzer),
)
