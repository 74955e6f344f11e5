package main

// General API documentation annotations for swaggo's swag generator.
//
// @title           modeld API
// @version         1.0
// @description     HTTP API for local llama-server lifecycle management and capability detection.
//
// @contact.name   modeld maintainers
// @contact.url    https://github.com/your-org/modeld
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
