package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"voxrelay/internal/store"
	"voxrelay/pkg/protocol"
)

const maxConversationLimit = 500

func storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrDeviceNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Device not found")
	case errors.Is(err, store.ErrInvalidDevice),
		errors.Is(err, store.ErrInvalidStatus),
		errors.Is(err, store.ErrInvalidTurn):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return err
	}
}

func deviceID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid device id: "+raw)
	}
	return id, nil
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	if err := s.store.Ping(c.UserContext()); err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(fiber.Map{"status": "ok", "subscribers": s.hub.Count()})
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req protocol.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}

	dev, err := s.store.RegisterDevice(c.UserContext(), req.Name, req.Status, req.DeviceType)
	if err != nil {
		return storeError(err)
	}
	s.hub.Publish(protocol.Event{Kind: protocol.EventDeviceRegistered, Device: &dev})
	return c.JSON(dev)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	id, err := deviceID(c.Params("id"))
	if err != nil {
		return err
	}
	var req protocol.StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}

	dev, err := s.store.UpdateDeviceStatus(c.UserContext(), id, req.Status)
	if err != nil {
		return storeError(err)
	}
	s.hub.Publish(protocol.Event{Kind: protocol.EventDeviceStatus, Device: &dev})
	return c.JSON(dev)
}

func (s *Server) handleGetDevice(c *fiber.Ctx) error {
	id, err := deviceID(c.Params("id"))
	if err != nil {
		return err
	}
	dev, err := s.store.GetDevice(c.UserContext(), id)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(dev)
}

func (s *Server) handleListDevices(c *fiber.Ctx) error {
	devs, err := s.store.ListDevices(c.UserContext())
	if err != nil {
		return err
	}
	if devs == nil {
		devs = []protocol.Device{}
	}
	return c.JSON(devs)
}

func (s *Server) handleConversations(c *fiber.Ctx) error {
	var id int64
	if raw := c.Query("device_id"); raw != "" {
		var err error
		if id, err = deviceID(raw); err != nil {
			return err
		}
	}
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > maxConversationLimit {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 500")
	}

	convs, err := s.store.ListConversations(c.UserContext(), id, limit)
	if err != nil {
		return err
	}
	if convs == nil {
		convs = []protocol.Conversation{}
	}
	return c.JSON(convs)
}

// handleProcess takes a multipart "audio" file and "device_id" field.
func (s *Server) handleProcess(c *fiber.Ctx) error {
	id, err := deviceID(c.FormValue("device_id"))
	if err != nil {
		return err
	}
	fh, err := c.FormFile("audio")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing audio file")
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := s.pipe.Process(c.UserContext(), f, id)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(res)
}
