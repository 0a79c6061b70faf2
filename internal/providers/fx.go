package providers

import (
	"github.com/smallbiznis/dojo/internal/providers/email"
	"github.com/smallbiznis/dojo/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
