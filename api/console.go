package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/airpulse/console/api/models"
	"github.com/airpulse/console/store"
	"github.com/gin-gonic/gin"
)

func (ws *WebServer) handleListCustomers(c *gin.Context) {
	customers, err := ws.db.GetCustomers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Database error: %v", err)})
		return
	}
	if customers == nil {
		customers = []store.Customer{}
	}
	c.JSON(http.StatusOK, models.CustomerListResponse{Customers: customers})
}

func (ws *WebServer) handleCreateCustomer(c *gin.Context) {
	var req models.CreateCustomerRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "name is required"})
		return
	}

	customer := &store.Customer{Name: req.Name, Email: req.Email}
	if err := ws.db.InsertCustomer(customer); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Database error: %v", err)})
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (ws *WebServer) handleDeleteCustomer(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid customer id"})
		return
	}
	if err := ws.db.DeleteCustomer(id); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Database error: %v", err)})
		return
	}
	c.JSON(http.StatusOK, models.MutationResponse{Res: models.ResOK, ID: id})
}

func (ws *WebServer) handleListMachines(c *gin.Context) {
	var (
		machines []store.Machine
		err      error
	)
	if cid := c.Query("cid"); cid != "" {
		customerID, perr := strconv.ParseInt(cid, 10, 64)
		if perr != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid cid parameter"})
			return
		}
		machines, err = ws.db.GetMachines(customerID)
	} else {
		machines, err = ws.db.GetAllMachines()
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Database error: %v", err)})
		return
	}
	if machines == nil {
		machines = []store.Machine{}
	}
	c.JSON(http.StatusOK, models.MachineListResponse{Machines: machines})
}

func (ws *WebServer) handleCreateMachine(c *gin.Context) {
	var req models.CreateMachineRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "name and customer_id are required"})
		return
	}

	machine := &store.Machine{CustomerID: req.CustomerID, Name: req.Name, Location: req.Location}
	if err := ws.db.InsertMachine(machine); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Database error: %v", err)})
		return
	}
	c.JSON(http.StatusOK, machine)
}

func (ws *WebServer) handleDeleteMachine(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid machine id"})
		return
	}
	if err := ws.db.DeleteMachine(id); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Database error: %v", err)})
		return
	}
	c.JSON(http.StatusOK, models.MutationResponse{Res: models.ResOK, ID: id})
}

// handleRelays reads the relay states for a machine, flipping one first
// when the relay parameter is present.
func (ws *WebServer) handleRelays(c *gin.Context) {
	machineID, err := strconv.ParseInt(c.Query("api"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid api parameter"})
		return
	}

	if relay := c.Query("relay"); relay != "" {
		if _, err := ws.db.ToggleRelay(machineID, relay); err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Database error: %v", err)})
			return
		}
	}

	relays, err := ws.db.GetRelayStates(machineID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Database error: %v", err)})
		return
	}
	c.JSON(http.StatusOK, models.RelaysResponse{MachineID: machineID, Relays: relays})
}

func (ws *WebServer) handleDashboard(c *gin.Context) {
	machineID, err := strconv.ParseInt(c.Query("api"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid api parameter"})
		return
	}

	reading, err := ws.db.GetLatestReading(machineID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Database error: %v", err)})
		return
	}
	if reading == nil {
		c.JSON(http.StatusOK, models.DashboardResponse{MachineID: machineID})
		return
	}

	c.JSON(http.StatusOK, models.DashboardResponse{
		MachineID:  machineID,
		Temp:       reading.Temp,
		Humidity:   reading.Humidity,
		CO2:        reading.CO2,
		PM25:       reading.PM25,
		PM10:       reading.PM10,
		TVOC:       reading.TVOC,
		AQI:        reading.AQI(),
		RecordedAt: reading.RecordedAt,
	})
}

// handlePostReading ingests a sensor report from a machine.
func (ws *WebServer) handlePostReading(c *gin.Context) {
	var req models.ReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid reading payload"})
		return
	}

	reading := &store.SensorReading{
		MachineID:  req.MachineID,
		Temp:       req.Temp,
		Humidity:   req.Humidity,
		CO2:        req.CO2,
		PM25:       req.PM25,
		PM10:       req.PM10,
		TVOC:       req.TVOC,
		RecordedAt: time.Now(),
	}
	if err := ws.db.InsertSensorReading(reading); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Database error: %v", err)})
		return
	}
	c.JSON(http.StatusOK, models.MutationResponse{Res: models.ResOK, ID: req.MachineID})
}

// handleReport returns readings for a machine over a trailing window.
func (ws *WebServer) handleReport(c *gin.Context) {
	machineID, err := strconv.ParseInt(c.Query("api"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid api parameter"})
		return
	}

	hours := 24
	if raw := c.Query("hours"); raw != "" {
		hours, err = strconv.Atoi(raw)
		if err != nil || hours < 1 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid hours parameter"})
			return
		}
	}

	readings, err := ws.db.GetReadings(machineID, time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Database error: %v", err)})
		return
	}
	if readings == nil {
		readings = []store.SensorReading{}
	}
	c.JSON(http.StatusOK, models.ReportResponse{MachineID: machineID, Readings: readings})
}

func (ws *WebServer) handleGetDisplaySettings(c *gin.Context) {
	machineID, err := strconv.ParseInt(c.Query("api"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid api parameter"})
		return
	}

	settings, err := ws.db.GetDisplaySettings(machineID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Database error: %v", err)})
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (ws *WebServer) handleUpdateDisplaySettings(c *gin.Context) {
	var settings store.DisplaySettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid settings payload"})
		return
	}
	if settings.MachineID == 0 || settings.HVACDurationSeconds < 1 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "machine_id and a positive hvac_duration are required"})
		return
	}

	if err := ws.db.UpsertDisplaySettings(&settings); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Database error: %v", err)})
		return
	}
	c.JSON(http.StatusOK, settings)
}
