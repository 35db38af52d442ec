package main

import (
	"fmt"

	"SpotFactory-server/config"
	"SpotFactory-server/models"
	"SpotFactory-server/routers"
	"SpotFactory-server/service"
)

func main() {
	config.InitConfig()
	fmt.Println("Server starting on port", config.AppConfig.Server.Port)
	models.InitDB()
	fmt.Println("Database initialized")

	service.InitQueue()
	fmt.Println("Queue initialized")

	service.InitMinIO()
	fmt.Println("MinIO initialized")

	service.InitProduction(models.GormDB)

	processor := service.NewProcessor()
	processor.StartProcessor(config.AppConfig.Production.Concurrency)

	r := routers.InitRouter()
	r.Run(config.AppConfig.Server.Port)
}
