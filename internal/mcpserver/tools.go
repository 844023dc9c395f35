package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Riftpay MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolCheckWallet = mcp.NewTool("check_wallet",
	mcp.WithDescription(
		"Check your current Riftpay wallet balance. "+
			"Shows available funds, pending holds, and lifetime totals."),
)

var ToolCreateRift = mcp.NewTool("create_rift",
	mcp.WithDescription(
		"Open a new escrow (rift) with a seller. You are the buyer. "+
			"Funds are not moved until the rift is funded; fees are quoted at creation "+
			"and locked in for the life of the rift."),
	mcp.WithString("seller_id",
		mcp.Required(),
		mcp.Description("The seller's user ID (e.g. 'usr_abc123')")),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Item subtotal before fees (e.g. '25.00')")),
	mcp.WithString("item_type",
		mcp.Required(),
		mcp.Description("What is being bought: 'physical' goods, 'digital' files, event 'ticket', or ongoing 'service'"),
		mcp.Enum("physical", "digital", "ticket", "service")),
)

var ToolGetRift = mcp.NewTool("get_rift",
	mcp.WithDescription(
		"Get the full state of a rift: status, amounts, fees, milestones, and deadlines."),
	mcp.WithString("rift_id",
		mcp.Required(),
		mcp.Description("The rift ID (e.g. 'rift_abc123')")),
)

var ToolListRifts = mcp.NewTool("list_rifts",
	mcp.WithDescription(
		"List your rifts, both as buyer and as seller, most recent first."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of rifts to return (default 20)")),
)

var ToolAdvanceRift = mcp.NewTool("advance_rift",
	mcp.WithDescription(
		"Move a rift to its next status. Typical flow: draft -> awaiting_payment -> "+
			"funded -> in_progress -> delivered -> released. "+
			"Each transition is validated against who you are and the current status."),
	mcp.WithString("rift_id",
		mcp.Required(),
		mcp.Description("The rift ID")),
	mcp.WithString("target",
		mcp.Required(),
		mcp.Description("Target status (e.g. 'awaiting_payment', 'funded', 'in_progress', 'delivered')")),
	mcp.WithString("role",
		mcp.Required(),
		mcp.Description("Your role in this rift: 'buyer' or 'seller'"),
		mcp.Enum("buyer", "seller")),
)

var ToolReleaseFunds = mcp.NewTool("release_funds",
	mcp.WithDescription(
		"Release the held funds of a delivered rift to the seller. "+
			"Buyers release early to skip the grace window; this is final and cannot be undone."),
	mcp.WithString("rift_id",
		mcp.Required(),
		mcp.Description("The rift ID")),
	mcp.WithString("role",
		mcp.Required(),
		mcp.Description("Your role in this rift: 'buyer' or 'seller'"),
		mcp.Enum("buyer", "seller")),
)

var ToolOpenDispute = mcp.NewTool("open_dispute",
	mcp.WithDescription(
		"Dispute a rift when the item or service was not delivered as agreed. "+
			"Freezes all payouts on the rift until the dispute is resolved; "+
			"auto-release is suspended while the dispute is open."),
	mcp.WithString("rift_id",
		mcp.Required(),
		mcp.Description("The rift ID")),
	mcp.WithString("reason",
		mcp.Required(),
		mcp.Description("Explanation of what went wrong with the purchase")),
)

var ToolRiftTimeline = mcp.NewTool("rift_timeline",
	mcp.WithDescription(
		"Show the event history of a rift: who did what and when, "+
			"from creation through funding, delivery, and release."),
	mcp.WithString("rift_id",
		mcp.Required(),
		mcp.Description("The rift ID")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of events to return (default 50)")),
)

var ToolWithdraw = mcp.NewTool("withdraw",
	mcp.WithDescription(
		"Withdraw available funds from your Riftpay wallet to your payout destination. "+
			"The amount is held while the transfer is in flight and settled when it completes."),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Amount to withdraw (e.g. '50.00')")),
)

var ToolPlatformInfo = mcp.NewTool("platform_info",
	mcp.WithDescription(
		"Get Riftpay platform configuration: fee rates, currency, and auto-release windows."),
)
