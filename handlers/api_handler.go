package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"instagram-bot/models"
	"instagram-bot/services"
)

// GetChannels lists the authenticated tenant's channel connections.
func GetChannels(c *fiber.Ctx) error {
	tenantID, _ := c.Locals("tenant_id").(string)

	channels, err := services.GetChannelsByTenant(c.Context(), tenantID)
	if err != nil {
		slog.Error("Failed to list channels", "tenantID", tenantID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list channels",
		})
	}

	return c.JSON(fiber.Map{"channels": channels})
}

// GetMessages returns a channel's message log, newest first. An optional
// sender_id query narrows the result to one conversation.
func GetMessages(c *fiber.Ctx) error {
	channel, err := tenantChannel(c)
	if err != nil {
		return err
	}

	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	skip := c.QueryInt("skip", 0)
	if skip < 0 {
		skip = 0
	}

	entries, total, err := services.GetMessageLogs(c.Context(), channel.ChannelID, c.Query("sender_id"), limit, skip)
	if err != nil {
		slog.Error("Failed to load message logs", "channelID", channel.ChannelID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load messages",
		})
	}

	return c.JSON(fiber.Map{
		"messages": entries,
		"total":    total,
		"limit":    limit,
		"skip":     skip,
	})
}

// GetCustomers returns a channel's CRM records, most recently seen first.
func GetCustomers(c *fiber.Ctx) error {
	channel, err := tenantChannel(c)
	if err != nil {
		return err
	}

	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	skip := c.QueryInt("skip", 0)
	if skip < 0 {
		skip = 0
	}

	customers, total, err := services.GetCustomersByChannel(c.Context(), channel.ChannelID, limit, skip)
	if err != nil {
		slog.Error("Failed to load customers", "channelID", channel.ChannelID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load customers",
		})
	}

	return c.JSON(fiber.Map{
		"customers": customers,
		"total":     total,
		"limit":     limit,
		"skip":      skip,
	})
}

// GetCustomerDetail returns one CRM record including its stage history.
func GetCustomerDetail(c *fiber.Ctx) error {
	channel, err := tenantChannel(c)
	if err != nil {
		return err
	}

	customer, err := services.GetCustomer(c.Context(), channel.ChannelID, c.Params("customerID"))
	if err != nil {
		slog.Error("Failed to load customer", "channelID", channel.ChannelID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load customer",
		})
	}
	if customer == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Customer not found",
		})
	}

	return c.JSON(fiber.Map{"customer": customer})
}

// tenantChannel resolves the :channelID route param and enforces tenant
// ownership.
func tenantChannel(c *fiber.Ctx) (*models.ChannelConnection, error) {
	tenantID, _ := c.Locals("tenant_id").(string)
	channelID := c.Params("channelID")

	channel, err := services.GetChannelByExternalID(c.Context(), channelID)
	if err != nil {
		slog.Error("Channel lookup failed", "channelID", channelID, "error", err)
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Channel lookup failed",
		})
	}
	if channel == nil || channel.TenantID != tenantID {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Channel not found",
		})
	}

	return channel, nil
}
