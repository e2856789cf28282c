package params

import "github.com/yaosenjutsu/yaoephemeris-mcp/internal/tools"

// Outbound builds the request body sent to the remote API for name from
// already-fixed arguments.
func Outbound(name tools.Name, args map[string]any) map[string]any {
	if name == tools.Election {
		return electionBody(args)
	}

	out := make(map[string]any, len(args))
	for key, value := range args {
		out[key] = value
	}
	if name.PrefersLocationString() && present(args["location"]) {
		delete(out, "latitude")
		delete(out, "longitude")
	}
	return out
}

func electionBody(args map[string]any) map[string]any {
	out := map[string]any{
		"purpose":    args["purpose"],
		"start_date": args["start_date"],
		"end_date":   args["end_date"],
	}
	switch {
	case present(args["location"]):
		out["location"] = args["location"]
	case isNumber(args["latitude"]) && isNumber(args["longitude"]):
		out["latitude"] = args["latitude"]
		out["longitude"] = args["longitude"]
	}
	if present(args["timezone"]) {
		out["timezone"] = args["timezone"]
	}
	return out
}
