package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// Render serializes a config as HCL, suitable for `config init` and
// `config show`.
func Render(c *Config) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	body.SetAttributeValue("schema_version", cty.NumberIntVal(int64(c.SchemaVersion)))
	body.SetAttributeValue("facts_dir", cty.StringVal(c.FactsDir))
	body.SetAttributeValue("default_policy", cty.StringVal(c.DefaultPolicy))
	if c.ResolveNames != nil {
		body.SetAttributeValue("resolve_names", cty.BoolVal(*c.ResolveNames))
	}

	if c.Log != nil {
		body.AppendNewline()
		blk := body.AppendNewBlock("log", nil).Body()
		blk.SetAttributeValue("level", cty.StringVal(c.Log.Level))
		blk.SetAttributeValue("format", cty.StringVal(c.Log.Format))
	}

	if c.History != nil {
		body.AppendNewline()
		blk := body.AppendNewBlock("history", nil).Body()
		if c.History.Enabled != nil {
			blk.SetAttributeValue("enabled", cty.BoolVal(*c.History.Enabled))
		}
		blk.SetAttributeValue("path", cty.StringVal(c.History.Path))
		blk.SetAttributeValue("limit", cty.NumberIntVal(int64(c.History.Limit)))
	}

	for _, r := range c.Routers {
		body.AppendNewline()
		blk := body.AppendNewBlock("router", []string{r.Name}).Body()
		if r.Facts != "" {
			blk.SetAttributeValue("facts", cty.StringVal(r.Facts))
		}
	}

	return f.Bytes()
}

// WriteDefault creates a config file with the built-in defaults. It
// refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, Render(Default()), 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
