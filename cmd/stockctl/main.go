// stockctl is an interactive console for a running stockd instance.
//
// Usage:
//
//	stockctl [-server http://localhost:8900] [-tenant demo]
//
// When stdin is a terminal it starts an interactive prompt with completion;
// otherwise it reads commands line by line, which makes it scriptable:
//
//	echo "status" | stockctl
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/tentenbyte/stockd/internal/client"
	"github.com/tentenbyte/stockd/internal/ledger"
)

type console struct {
	api    *client.Client
	tenant string
}

var commands = []prompt.Suggest{
	{Text: "use", Description: "use <tenant> - select the working tenant"},
	{Text: "tenants", Description: "list known tenants"},
	{Text: "add", Description: "add item=I name=N type=in|out qty=Q price=P [warehouse=W doc=D partner=P]"},
	{Text: "list", Description: "list [item=I|doc=D|partner=P|start=T end=T] - list transactions"},
	{Text: "inventory", Description: "show current stock by warehouse"},
	{Text: "items", Description: "show item catalog with positive stock"},
	{Text: "documents", Description: "show per-document summaries"},
	{Text: "stats", Description: "show tenant statistics"},
	{Text: "status", Description: "show system status"},
	{Text: "snapshot", Description: "create a snapshot now"},
	{Text: "archive", Description: "run an archival pass now"},
	{Text: "help", Description: "show available commands"},
	{Text: "exit", Description: "quit the console"},
}

func main() {
	serverURL := flag.String("server", "http://localhost:8900", "stockd server URL")
	tenant := flag.String("tenant", "", "initial tenant id")
	flag.Parse()

	c := &console{
		api:    client.New(*serverURL),
		tenant: *tenant,
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		c.runScripted()
		return
	}

	fmt.Printf("stockctl connected to %s (type 'help' for commands)\n", *serverURL)
	p := prompt.New(
		c.execute,
		c.complete,
		prompt.OptionTitle("stockctl"),
		prompt.OptionLivePrefix(c.livePrefix),
	)
	p.Run()
}

// runScripted executes commands from stdin without the interactive prompt.
func (c *console) runScripted() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c.execute(line)
	}
}

func (c *console) livePrefix() (string, bool) {
	if c.tenant == "" {
		return "stockctl> ", true
	}
	return fmt.Sprintf("stockctl[%s]> ", c.tenant), true
}

func (c *console) complete(d prompt.Document) []prompt.Suggest {
	if d.TextBeforeCursor() == "" {
		return nil
	}
	args := strings.Fields(d.TextBeforeCursor())
	if len(args) > 1 {
		return nil
	}
	return prompt.FilterHasPrefix(commands, d.GetWordBeforeCursor(), true)
}

func (c *console) execute(line string) {
	args := strings.Fields(strings.TrimSpace(line))
	if len(args) == 0 {
		return
	}

	switch args[0] {
	case "use":
		if len(args) != 2 {
			fmt.Println("usage: use <tenant>")
			return
		}
		c.tenant = args[1]
		fmt.Printf("using tenant %s\n", c.tenant)
	case "tenants":
		c.cmdTenants()
	case "add":
		c.cmdAdd(args[1:])
	case "list":
		c.cmdList(args[1:])
	case "inventory":
		c.cmdInventory()
	case "items":
		c.cmdItems()
	case "documents":
		c.cmdDocuments()
	case "stats":
		c.cmdStats()
	case "status":
		c.cmdStatus()
	case "snapshot":
		if err := c.api.CreateSnapshot(); err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("snapshot created")
	case "archive":
		if err := c.api.RunArchive(); err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("archival pass complete")
	case "help":
		for _, cmd := range commands {
			fmt.Printf("  %-10s %s\n", cmd.Text, cmd.Description)
		}
	case "exit", "quit":
		os.Exit(0)
	default:
		fmt.Printf("unknown command %q (type 'help')\n", args[0])
	}
}

// requireTenant reports whether a working tenant is selected.
func (c *console) requireTenant() bool {
	if c.tenant == "" {
		fmt.Println("no tenant selected (use <tenant>)")
		return false
	}
	return true
}

func (c *console) cmdTenants() {
	tenants, err := c.api.Tenants()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if len(tenants) == 0 {
		fmt.Println("no tenants")
		return
	}
	for _, t := range tenants {
		fmt.Println(" ", t)
	}
}

// cmdAdd parses key=value arguments into a transaction and appends it.
func (c *console) cmdAdd(args []string) {
	if !c.requireTenant() {
		return
	}

	kv := make(map[string]string)
	for _, a := range args {
		parts := strings.SplitN(a, "=", 2)
		if len(parts) != 2 {
			fmt.Printf("bad argument %q (want key=value)\n", a)
			return
		}
		kv[parts[0]] = parts[1]
	}

	qty, err := strconv.Atoi(kv["qty"])
	if err != nil {
		fmt.Println("qty must be an integer")
		return
	}
	price, err := strconv.ParseFloat(kv["price"], 64)
	if err != nil {
		fmt.Println("price must be a number")
		return
	}

	e := ledger.Event{
		ItemID:      kv["item"],
		ItemName:    kv["name"],
		Type:        kv["type"],
		Quantity:    qty,
		UnitPrice:   price,
		Category:    kv["category"],
		Model:       kv["model"],
		Unit:        kv["unit"],
		PartnerID:   kv["partner"],
		PartnerName: kv["partner_name"],
		WarehouseID: kv["warehouse"],
		DocumentNo:  kv["doc"],
		Note:        kv["note"],
	}

	id, err := c.api.AppendTransaction(c.tenant, e)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("appended", id)
}

func (c *console) cmdList(args []string) {
	if !c.requireTenant() {
		return
	}

	filters := make(map[string]string)
	for _, a := range args {
		parts := strings.SplitN(a, "=", 2)
		if len(parts) == 2 {
			filters[parts[0]] = parts[1]
		}
	}

	res, err := c.api.Transactions(c.tenant, filters)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Printf("%d transaction(s)\n", res.Count)
	for _, e := range res.Transactions {
		fmt.Printf("  %-22s %-4s %-12s qty=%-6d price=%-10.2f %s\n",
			e.TransID, e.Type, e.ItemID, e.Quantity, e.UnitPrice, e.Timestamp)
	}
}

func (c *console) cmdInventory() {
	if !c.requireTenant() {
		return
	}

	res, err := c.api.Inventory(c.tenant)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	for _, wh := range res.Warehouses {
		fmt.Printf("warehouse %s\n", wh.WarehouseID)
		for _, item := range wh.Items {
			fmt.Printf("  %-12s qty=%-6d avg_price=%.2f\n",
				item.ItemID, item.Quantity, item.AvgPrice)
		}
	}
}

func (c *console) cmdItems() {
	if !c.requireTenant() {
		return
	}

	res, err := c.api.Items(c.tenant)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Printf("%d item(s)\n", res.Count)
	for _, it := range res.Items {
		fmt.Printf("  %-12s %-20s qty=%-6d price=%-10.2f %s\n",
			it.ItemID, it.ItemName, it.TotalQuantity, it.LatestPrice, it.Category)
	}
}

func (c *console) cmdDocuments() {
	if !c.requireTenant() {
		return
	}

	res, err := c.api.Documents(c.tenant)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Printf("%d document(s)\n", res.Count)
	for _, d := range res.Documents {
		fmt.Printf("  %-16s %-4s amount=%-12.2f items=%-4d %s\n",
			d.DocumentNo, d.Type, d.TotalAmount, d.ItemCount, d.Timestamp)
	}
}

func (c *console) cmdStats() {
	if !c.requireTenant() {
		return
	}
	stats, err := c.api.Statistics(c.tenant)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	printJSON(stats)
}

func (c *console) cmdStatus() {
	status, err := c.api.SystemStatus()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	printJSON(status)
}

func printJSON(v map[string]any) {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %v\n", k, v[k])
	}
}
