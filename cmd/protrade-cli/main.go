package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"protrade/pkg/protrade"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: protrade-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version                       Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  status                        Show broker credential status\n")
		fmt.Fprintf(os.Stderr, "  account   -broker <id>        Show the account snapshot\n")
		fmt.Fprintf(os.Stderr, "  positions -broker <id>        List open positions\n")
		fmt.Fprintf(os.Stderr, "  orders    -broker <id>        List recent orders\n")
		fmt.Fprintf(os.Stderr, "  buy/sell  -broker <id> -symbol <sym> -qty <n> [-limit <price>]\n")
		fmt.Fprintf(os.Stderr, "  quote     -broker <id> -symbol <sym>\n")
		fmt.Fprintf(os.Stderr, "  journal   [-limit <n>]        Show recorded placement attempts\n")
		fmt.Fprintf(os.Stderr, "\nServer address is taken from PROTRADE_URL (default http://localhost:8080).\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("PROTRADE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	client := protrade.NewClient(baseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "version":
		fmt.Printf("protrade-cli %s\n", version)

	case "status":
		runStatus(ctx, client)

	case "account":
		runAccount(ctx, client, args)

	case "positions":
		runPositions(ctx, client, args)

	case "orders":
		runOrders(ctx, client, args)

	case "buy", "sell":
		runPlace(ctx, client, cmd, args)

	case "quote":
		runQuote(ctx, client, args)

	case "journal":
		runJournal(ctx, client, args)

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		flag.Usage()
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func brokerFlag(fs *flag.FlagSet) *string {
	return fs.String("broker", protrade.BrokerStock, "broker id (stock or crypto)")
}

func runStatus(ctx context.Context, client *protrade.Client) {
	status, err := client.Status(ctx)
	if err != nil {
		fatal(err)
	}
	for id, b := range status.Brokers {
		state := "not configured"
		if b.Configured {
			state = "configured"
		}
		fmt.Printf("%-8s %s\n", id, state)
	}
}

func runAccount(ctx context.Context, client *protrade.Client, args []string) {
	fs := flag.NewFlagSet("account", flag.ExitOnError)
	broker := brokerFlag(fs)
	fs.Parse(args)

	snap, err := client.GetAccount(ctx, *broker)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("cash:            %s\n", snap.Cash)
	fmt.Printf("buying power:    %s\n", snap.BuyingPower)
	fmt.Printf("portfolio value: %s\n", snap.PortfolioValue)
	fmt.Printf("equity:          %s\n", snap.Equity)
}

func runPositions(ctx context.Context, client *protrade.Client, args []string) {
	fs := flag.NewFlagSet("positions", flag.ExitOnError)
	broker := brokerFlag(fs)
	fs.Parse(args)

	positions, err := client.GetPositions(ctx, *broker)
	if err != nil {
		fatal(err)
	}
	if len(positions) == 0 {
		fmt.Println("no open positions")
		return
	}
	fmt.Printf("%-10s %12s %14s %14s %12s\n", "SYMBOL", "QTY", "AVG ENTRY", "CURRENT", "UNREAL P/L")
	for _, p := range positions {
		fmt.Printf("%-10s %12s %14s %14s %12s\n",
			p.Symbol, p.Qty, p.AvgEntryPrice, p.CurrentPrice, p.UnrealizedPL)
	}
}

func runOrders(ctx context.Context, client *protrade.Client, args []string) {
	fs := flag.NewFlagSet("orders", flag.ExitOnError)
	broker := brokerFlag(fs)
	fs.Parse(args)

	orders, err := client.GetOrders(ctx, *broker)
	if err != nil {
		fatal(err)
	}
	if len(orders) == 0 {
		fmt.Println("no recent orders")
		return
	}
	fmt.Printf("%-20s %-10s %-6s %-18s %12s\n", "ORDER ID", "SYMBOL", "SIDE", "STATUS", "FILLED")
	for _, o := range orders {
		fmt.Printf("%-20s %-10s %-6s %-18s %12s\n",
			o.BrokerOrderID, o.Symbol, o.Side, o.Status, o.FilledQty)
	}
}

func runPlace(ctx context.Context, client *protrade.Client, side string, args []string) {
	fs := flag.NewFlagSet(side, flag.ExitOnError)
	broker := brokerFlag(fs)
	symbol := fs.String("symbol", "", "symbol to trade")
	qty := fs.String("qty", "", "quantity")
	limit := fs.String("limit", "", "limit price (omit for a market order)")
	token := fs.String("token", "", "client order id for deduplication")
	fs.Parse(args)

	if *symbol == "" || *qty == "" {
		fatal(fmt.Errorf("-symbol and -qty are required"))
	}
	quantity, err := decimal.NewFromString(*qty)
	if err != nil {
		fatal(fmt.Errorf("invalid quantity %q: %w", *qty, err))
	}

	order := protrade.Order{
		Symbol:        *symbol,
		Quantity:      quantity,
		Side:          side,
		OrderType:     "market",
		BrokerID:      *broker,
		ClientOrderID: *token,
	}
	if *limit != "" {
		price, err := decimal.NewFromString(*limit)
		if err != nil {
			fatal(fmt.Errorf("invalid limit price %q: %w", *limit, err))
		}
		order.OrderType = "limit"
		order.LimitPrice = &price
	}

	res, err := client.PlaceOrder(ctx, order)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("order %s: %s (filled %s)\n", res.BrokerOrderID, res.Status, res.FilledQty)
}

func runQuote(ctx context.Context, client *protrade.Client, args []string) {
	fs := flag.NewFlagSet("quote", flag.ExitOnError)
	broker := brokerFlag(fs)
	symbol := fs.String("symbol", "", "symbol to quote")
	fs.Parse(args)

	if *symbol == "" {
		fatal(fmt.Errorf("-symbol is required"))
	}
	quote, err := client.GetQuote(ctx, *broker, *symbol)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("%s %s @ %s\n", quote.Symbol, quote.Price, quote.Timestamp.Format(time.RFC3339))
}

func runJournal(ctx context.Context, client *protrade.Client, args []string) {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	limit := fs.Int("limit", 20, "max entries to show")
	fs.Parse(args)

	entries, err := client.GetJournal(ctx, *limit)
	if err != nil {
		fatal(err)
	}
	if len(entries) == 0 {
		fmt.Println("journal is empty")
		return
	}
	for _, e := range entries {
		outcome := e.Status
		if e.ErrorKind != "" {
			outcome = e.ErrorKind
		}
		fmt.Printf("%s  %-8s %-6s %-10s qty=%-12s %s\n",
			e.CreatedAt.Format(time.RFC3339), e.BrokerID, e.Side, e.Symbol, e.Quantity, outcome)
	}
}
