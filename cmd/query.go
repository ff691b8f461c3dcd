package cmd

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v2"

	"grimm.is/tsim/internal/engine"
	"grimm.is/tsim/internal/facts"
	"grimm.is/tsim/internal/history"
	"grimm.is/tsim/internal/logging"
	"grimm.is/tsim/internal/metrics"
	"grimm.is/tsim/internal/queryparse"
)

// routerVerdict pairs one router with its evaluation outcome for
// structured output.
type routerVerdict struct {
	Router string        `json:"router" yaml:"router"`
	Query  engine.Query  `json:"query" yaml:"query"`
	Result engine.Result `json:"result" yaml:"result"`
}

// RunQuery evaluates one packet against one router's facts, or against
// every router in the facts directory.
func RunQuery(args []string) int {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var src, sport, dst, dport, proto, state string
	fs.StringVar(&src, "s", "", "Source address (IP, CIDR, range, or comma list)")
	fs.StringVar(&src, "source", "", "Source address (long)")
	fs.StringVar(&sport, "sp", "", "Source port")
	fs.StringVar(&sport, "source-port", "", "Source port (long)")
	fs.StringVar(&dst, "d", "", "Destination address")
	fs.StringVar(&dst, "dest", "", "Destination address (long)")
	fs.StringVar(&dport, "dp", "", "Destination port")
	fs.StringVar(&dport, "dest-port", "", "Destination port (long)")
	fs.StringVar(&proto, "p", "all", "Protocol: all, tcp, udp, icmp")
	fs.StringVar(&proto, "protocol", "all", "Protocol (long)")
	fs.StringVar(&state, "state", "NEW", "Connection state")

	router := fs.String("router", "", "Router name (facts file is DIR/NAME.json)")
	factsDir := fs.String("tsim-facts", "", "Facts directory")
	allRouters := fs.Bool("all-routers", false, "Evaluate against every router in the facts dir")
	format := fs.String("format", "text", "Output format: text, json, yaml")
	trace := fs.Bool("trace", false, "Include the evaluation trace in the output")
	dumpMetrics := fs.Bool("metrics", false, "Print the metrics registry after the verdict")
	noHistory := fs.Bool("no-history", false, "Do not record this query")
	configPath := configFlag(fs)
	var verbosity countFlag
	fs.Var(&verbosity, "v", "Increase diagnostic verbosity (repeatable)")

	if err := fs.Parse(args); err != nil {
		return ExitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		Printer.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}
	log := newLogger(cfg, int(verbosity))

	if src == "" || dst == "" {
		Printer.Fprintf(os.Stderr, "source (-s) and destination (-d) are required\n")
		return ExitError
	}
	if *router == "" && !*allRouters {
		Printer.Fprintf(os.Stderr, "--router NAME or --all-routers is required\n")
		return ExitError
	}
	if *factsDir != "" {
		cfg.FactsDir = *factsDir
	}

	var resolver queryparse.Resolver
	if cfg.ResolveHostnames() {
		r, err := queryparse.NewDNSResolver()
		if err != nil {
			log.Warn("hostname resolution disabled", "error", err)
		} else {
			resolver = r
		}
	}

	q, err := queryparse.BuildQuery(src, sport, dst, dport, proto, state, resolver)
	if err != nil {
		Printer.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}

	wantTrace := *trace || int(verbosity) >= 2

	var verdicts []routerVerdict
	if *allRouters {
		verdicts, err = evaluateAll(cfg.FactsDir, cfg.DefaultPolicy, q, wantTrace, log)
	} else {
		var v routerVerdict
		v, err = evaluateOne(cfg.FactsPath(*router), *router, cfg.DefaultPolicy, q, wantTrace, log)
		verdicts = []routerVerdict{v}
	}
	if err != nil {
		metrics.Get().FactsLoads.WithLabelValues("error").Inc()
		Printer.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}

	if !*noHistory && cfg.HistoryEnabled() {
		recordHistory(cfg.History.Path, cfg.History.Limit, verdicts, log)
	}

	code := ExitAllowed
	for _, v := range verdicts {
		if !v.Result.Allowed {
			code = ExitDenied
		}
	}

	if err := printVerdicts(verdicts, *format, wantTrace, *allRouters); err != nil {
		Printer.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}

	if *dumpMetrics {
		out, err := metrics.Get().Dump()
		if err == nil {
			Printer.Printf("%s", out)
		}
	}
	return code
}

// evaluateOne loads one facts file and runs the query. policy backstops
// routers whose capture carries no FORWARD policy, for what-if runs.
func evaluateOne(path, router, policy string, q engine.Query, trace bool, log *logging.Logger) (routerVerdict, error) {
	doc, err := facts.LoadFile(path)
	if err != nil {
		return routerVerdict{}, err
	}
	if doc.Router == "" {
		doc.Router = router
	}
	if policy != "" {
		if _, ok := doc.Firewall.Iptables.Policies[engine.ChainForward]; !ok {
			if doc.Firewall.Iptables.Policies == nil {
				doc.Firewall.Iptables.Policies = map[string]string{}
			}
			doc.Firewall.Iptables.Policies[engine.ChainForward] = policy
		}
	}
	eng, err := doc.Engine(log)
	if err != nil {
		return routerVerdict{}, err
	}
	metrics.Get().FactsLoads.WithLabelValues("ok").Inc()

	start := time.Now()
	var res engine.Result
	if trace {
		res, err = eng.EvaluateTrace(q)
	} else {
		res, err = eng.Evaluate(q)
	}
	if err != nil {
		return routerVerdict{}, err
	}
	metrics.Get().RecordQuery(router, res.Allowed, res.RulesTested, time.Since(start).Seconds())

	return routerVerdict{Router: router, Query: q, Result: res}, nil
}

// evaluateAll runs the query against every facts file in dir, one engine
// per router, bounded-parallel. Any load error fails the whole run.
func evaluateAll(dir, policy string, q engine.Query, trace bool, log *logging.Logger) ([]routerVerdict, error) {
	routers, err := facts.Routers(dir)
	if err != nil {
		return nil, err
	}

	verdicts := make([]routerVerdict, len(routers))
	var g errgroup.Group
	g.SetLimit(8)
	for i, name := range routers {
		g.Go(func() error {
			v, err := evaluateOne(facts.Path(dir, name), name, policy, q, trace, log)
			if err != nil {
				return err
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(verdicts, func(i, j int) bool { return verdicts[i].Router < verdicts[j].Router })
	return verdicts, nil
}

func recordHistory(path string, limit int, verdicts []routerVerdict, log *logging.Logger) {
	store, err := history.Open(path, limit)
	if err != nil {
		log.Warn("history disabled", "error", err)
		return
	}
	defer store.Close()
	for _, v := range verdicts {
		err := store.Append(history.Record{
			Router:  v.Router,
			Query:   v.Query,
			Allowed: v.Result.Allowed,
			Reason:  v.Result.Reason,
		})
		if err != nil {
			log.Warn("history append failed", "error", err)
			return
		}
	}
}

func printVerdicts(verdicts []routerVerdict, format string, trace, summary bool) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if len(verdicts) == 1 {
			return enc.Encode(verdicts[0])
		}
		return enc.Encode(verdicts)

	case "yaml":
		var v any = verdicts
		if len(verdicts) == 1 {
			v = verdicts[0]
		}
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err

	case "text":
		allowed := 0
		for _, v := range verdicts {
			verdict := "DENIED"
			if v.Result.Allowed {
				verdict = "ALLOWED"
				allowed++
			}
			Printer.Printf("%s: %s\n", v.Router, verdict)
			Printer.Printf("  %s\n", v.Result.Reason)
			if trace {
				printTrace(v.Result.Steps)
			}
		}
		if summary {
			Printer.Printf("%d of %d routers allow this traffic\n", allowed, len(verdicts))
		}
		return nil

	default:
		return fmt.Errorf("format %q not supported (text, json, yaml)", format)
	}
}

func printTrace(steps []engine.Step) {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	Printer.Fprintf(w, "  CHAIN\tLINE\tTARGET\tSTEP\tDETAIL\n")
	for _, s := range steps {
		line := ""
		if s.Line > 0 {
			line = Printer.Sprintf("%d", s.Line)
		}
		detail := s.Note
		if detail == "" && s.Criterion != "" {
			detail = "failed: " + s.Criterion
		}
		Printer.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", s.Chain, line, s.Target, s.Kind, detail)
	}
	w.Flush()
}
